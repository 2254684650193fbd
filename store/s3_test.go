package store

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/vidbridge/vidbridge/logging"
)

// fakeS3Transport answers every request locally so the client never
// reaches the network. HEAD status is configurable to model object
// presence; everything else succeeds.
type fakeS3Transport struct {
	headStatus int
	requests   []string
}

func (f *fakeS3Transport) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req.Method+" "+req.URL.Path)
	status := http.StatusOK
	if req.Method == http.MethodHead {
		status = f.headStatus
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func newFakeS3Store(t *testing.T, headStatus int) (*S3ObjectStorageImpl, *fakeS3Transport) {
	t.Helper()
	transport := &fakeS3Transport{headStatus: headStatus}
	client := s3.New(s3.Options{
		Region:     "us-east-1",
		HTTPClient: transport,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
	})
	return NewS3ObjectStorageImpl(client, "test-bucket", time.Hour, logging.NewNopLogger()), transport
}

func TestRemotePutUploadsMissingObject(t *testing.T) {
	s, transport := newFakeS3Store(t, http.StatusNotFound)

	url, err := s.Put(context.Background(), "videos/clip.mp4", strings.NewReader("data"), 4)
	require.NoError(t, err)
	require.Contains(t, url, "videos/clip.mp4")
	require.Contains(t, url, "X-Amz-Signature")

	joined := strings.Join(transport.requests, "\n")
	require.Contains(t, joined, "HEAD ")
	require.Contains(t, joined, "PUT ")
}

func TestRemotePutReSignsExistingObject(t *testing.T) {
	s, transport := newFakeS3Store(t, http.StatusOK)

	url, err := s.Put(context.Background(), "videos/clip.mp4", strings.NewReader("data"), 4)
	require.NoError(t, err)
	require.Contains(t, url, "videos/clip.mp4")
	require.Contains(t, url, "X-Amz-Signature")

	// presigning is local, so the existing object is never pushed again
	for _, r := range transport.requests {
		require.False(t, strings.HasPrefix(r, "PUT "), "unexpected request %q", r)
	}
}

func TestFileExists(t *testing.T) {
	s, _ := newFakeS3Store(t, http.StatusOK)
	exists, err := s.FileExists(context.Background(), "videos/clip.mp4")
	require.NoError(t, err)
	require.True(t, exists)

	s, _ = newFakeS3Store(t, http.StatusNotFound)
	exists, err = s.FileExists(context.Background(), "videos/clip.mp4")
	require.NoError(t, err)
	require.False(t, exists)
}
