package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/store"
)

func newTestManager(t *testing.T) (*UploadManagerImpl, *store.LocalDiskStorageImpl, store.TokenStore) {
	t.Helper()

	nop := logging.NewNopLogger()
	local, err := store.NewLocalDiskStorageImpl(t.TempDir(), nop)
	require.NoError(t, err)

	tokens := store.NewMemoryTokenStoreImpl(10*time.Minute, time.Hour, nop)
	mgr := NewUploadManagerImpl(local, tokens, "http://localhost:3000", 30*time.Minute, time.Hour, nop)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, mgr.Shutdown(ctx))
		require.NoError(t, tokens.Shutdown(ctx))
	})
	return mgr, local, tokens
}

// chunkOf fills a chunk with a byte derived from its index so reassembly
// order is visible in the file content.
func chunkOf(index uint32, size int) []byte {
	return bytes.Repeat([]byte{byte('a' + index)}, size)
}

func apply(t *testing.T, mgr *UploadManagerImpl, uploadID string, index, total uint32, chunkSize int64, data []byte) (*ChunkResult, error) {
	t.Helper()
	return mgr.ApplyChunk(context.Background(), ChunkRequest{
		UploadId:  uploadID,
		Name:      uploadID + ".mp4",
		Index:     index,
		Total:     total,
		Size:      uint64(int64(total) * chunkSize),
		ChunkSize: chunkSize,
		Origin:    "sender",
		Data:      data,
	})
}

func TestMissingUploadIDRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.ApplyChunk(context.Background(), ChunkRequest{
		Name: "x.mp4", Total: 1, ChunkSize: 4, Data: []byte("abcd"),
	})
	require.ErrorIs(t, err, apperrors.ErrMissingUploadID)
}

func TestChunkIndexOutOfRangeRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := apply(t, mgr, "u1", 4, 4, 4, []byte("abcd"))
	require.ErrorIs(t, err, apperrors.ErrChunkOutOfRange)

	// nothing was created for the bad chunk
	_, err = mgr.Session("u1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestProgressPercentRounds(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	res, err := apply(t, mgr, "u1", 0, 3, 4, chunkOf(0, 4))
	require.NoError(t, err)
	require.Equal(t, uint32(1), res.Received)
	require.Equal(t, 33, res.Percent)

	res, err = apply(t, mgr, "u1", 1, 3, 4, chunkOf(1, 4))
	require.NoError(t, err)
	require.Equal(t, 67, res.Percent)
	require.Nil(t, res.Completed)
}

func TestChunkIdempotence(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	first, err := apply(t, mgr, "u1", 0, 2, 4, chunkOf(0, 4))
	require.NoError(t, err)

	again, err := apply(t, mgr, "u1", 0, 2, 4, chunkOf(0, 4))
	require.NoError(t, err)

	require.Equal(t, first.Received, again.Received)
	require.Equal(t, first.Percent, again.Percent)

	sess, err := mgr.Session("u1")
	require.NoError(t, err)
	require.Len(t, sess.ReceivedChunks, 1)
}

func TestOutOfOrderProducesIdenticalFile(t *testing.T) {
	mgr, local, _ := newTestManager(t)

	const total, chunkSize = 4, 4

	var reversed *ChunkResult
	for i := int(total) - 1; i >= 0; i-- {
		res, err := apply(t, mgr, "rev", uint32(i), total, chunkSize, chunkOf(uint32(i), chunkSize))
		require.NoError(t, err)
		reversed = res
	}
	require.NotNil(t, reversed.Completed)

	var forward *ChunkResult
	for i := 0; i < int(total); i++ {
		res, err := apply(t, mgr, "fwd", uint32(i), total, chunkSize, chunkOf(uint32(i), chunkSize))
		require.NoError(t, err)
		forward = res
	}
	require.NotNil(t, forward.Completed)

	revPath, err := local.Path("rev.mp4")
	require.NoError(t, err)
	fwdPath, err := local.Path("fwd.mp4")
	require.NoError(t, err)

	revBytes, err := os.ReadFile(revPath)
	require.NoError(t, err)
	fwdBytes, err := os.ReadFile(fwdPath)
	require.NoError(t, err)

	require.Equal(t, []byte("aaaabbbbccccdddd"), fwdBytes)
	require.Equal(t, fwdBytes, revBytes)
}

func TestCompletionMintsTokenAndDiscardsSession(t *testing.T) {
	mgr, _, tokens := newTestManager(t)

	res, err := apply(t, mgr, "u1", 0, 1, 4, []byte("abcd"))
	require.NoError(t, err)
	require.NotNil(t, res.Completed)
	require.Equal(t, 100, res.Percent)

	file := res.Completed
	require.Equal(t, "u1.mp4", file.Name)
	require.NotEmpty(t, file.Token)
	require.Contains(t, file.URL, "/uploads/u1.mp4?token=")

	require.NoError(t, tokens.Validate(context.Background(), file.Token, file.Name))

	_, err = mgr.Session("u1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestCompletionRequiresEveryIndex(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	// apply the same index repeatedly: count must not reach total
	for i := 0; i < 5; i++ {
		res, err := apply(t, mgr, "u1", 1, 3, 4, chunkOf(1, 4))
		require.NoError(t, err)
		require.Nil(t, res.Completed)
		require.Equal(t, uint32(1), res.Received)
	}
}

func TestMismatchedRedeclarationRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := apply(t, mgr, "u1", 0, 4, 4, chunkOf(0, 4))
	require.NoError(t, err)

	// different total
	_, err = apply(t, mgr, "u1", 1, 5, 4, chunkOf(1, 4))
	require.ErrorIs(t, err, apperrors.ErrChunkMismatch)

	// different chunk size
	_, err = apply(t, mgr, "u1", 1, 4, 8, chunkOf(1, 8))
	require.ErrorIs(t, err, apperrors.ErrChunkMismatch)

	// the session survives rejected resubmissions
	sess, err := mgr.Session("u1")
	require.NoError(t, err)
	require.Len(t, sess.ReceivedChunks, 1)
}

func TestUnsafeFileNameRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.ApplyChunk(context.Background(), ChunkRequest{
		UploadId: "u1", Name: "../escape.mp4", Index: 0, Total: 1,
		Size: 4, ChunkSize: 4, Data: []byte("abcd"),
	})
	require.ErrorIs(t, err, apperrors.ErrUnsafeName)
}

func TestOrphanCollection(t *testing.T) {
	mgr, local, _ := newTestManager(t)

	_, err := apply(t, mgr, "orphan", 0, 2, 4, chunkOf(0, 4))
	require.NoError(t, err)

	base := time.Now()
	mgr.now = func() time.Time { return base.Add(31 * time.Minute) }
	mgr.collectOrphans()

	_, err = mgr.Session("orphan")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	// the partial file is gone too
	_, err = local.Stat("orphan.mp4")
	require.ErrorIs(t, err, apperrors.ErrFileNotFound)
}

func TestCompletionsProceedWhileJanitorRuns(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	stop := make(chan struct{})
	var janitor sync.WaitGroup
	janitor.Add(1)
	go func() {
		defer janitor.Done()
		for {
			select {
			case <-stop:
				return
			default:
				mgr.collectOrphans()
			}
		}
	}()

	uploads := make(chan error, 1)
	go func() {
		for i := 0; i < 100; i++ {
			id := fmt.Sprintf("u%d", i)
			for idx := uint32(0); idx < 2; idx++ {
				if _, err := mgr.ApplyChunk(context.Background(), ChunkRequest{
					UploadId: id, Name: id + ".mp4", Index: idx, Total: 2,
					Size: 8, ChunkSize: 4, Data: chunkOf(idx, 4),
				}); err != nil {
					uploads <- err
					return
				}
			}
		}
		uploads <- nil
	}()

	select {
	case err := <-uploads:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("completions wedged while the janitor was running")
	}

	close(stop)
	janitor.Wait()
}

type mintFailOnceStore struct {
	inner    store.TokenStore
	failNext bool
}

func (s *mintFailOnceStore) Mint(ctx context.Context, fileName string) (string, error) {
	if s.failNext {
		s.failNext = false
		return "", errors.New("token backend unavailable")
	}
	return s.inner.Mint(ctx, fileName)
}

func (s *mintFailOnceStore) Validate(ctx context.Context, token, fileName string) error {
	return s.inner.Validate(ctx, token, fileName)
}

func TestFinalChunkRetriesAfterMintFailure(t *testing.T) {
	nop := logging.NewNopLogger()
	local, err := store.NewLocalDiskStorageImpl(t.TempDir(), nop)
	require.NoError(t, err)

	mem := store.NewMemoryTokenStoreImpl(10*time.Minute, time.Hour, nop)
	flaky := &mintFailOnceStore{inner: mem, failNext: true}
	mgr := NewUploadManagerImpl(local, flaky, "http://localhost:3000", 30*time.Minute, time.Hour, nop)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, mgr.Shutdown(ctx))
		require.NoError(t, mem.Shutdown(ctx))
	})

	_, err = apply(t, mgr, "u1", 0, 2, 4, chunkOf(0, 4))
	require.NoError(t, err)

	_, err = apply(t, mgr, "u1", 1, 2, 4, chunkOf(1, 4))
	require.Error(t, err)

	// the session survived the failed finalization
	sess, err := mgr.Session("u1")
	require.NoError(t, err)
	require.Len(t, sess.ReceivedChunks, 2)

	res, err := apply(t, mgr, "u1", 1, 2, 4, chunkOf(1, 4))
	require.NoError(t, err)
	require.NotNil(t, res.Completed)

	path, err := local.Path("u1.mp4")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaabbbb"), got)
}

func TestLastChunkMayBeShort(t *testing.T) {
	mgr, local, _ := newTestManager(t)

	res, err := mgr.ApplyChunk(context.Background(), ChunkRequest{
		UploadId: "u1", Name: "short.mp4", Index: 0, Total: 2,
		Size: 6, ChunkSize: 4, Data: []byte("aaaa"),
	})
	require.NoError(t, err)
	require.Nil(t, res.Completed)

	res, err = mgr.ApplyChunk(context.Background(), ChunkRequest{
		UploadId: "u1", Name: "short.mp4", Index: 1, Total: 2,
		Size: 6, ChunkSize: 4, Data: []byte("bb"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Completed)

	path, err := local.Path("short.mp4")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaabb"), got)
}
