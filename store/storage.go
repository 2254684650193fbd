package store

import (
	"context"
	"io"
)

// ObjectStorage is the sink for finished files. Both backends satisfy the
// same contract so the direct-upload handler is backend-agnostic: Put
// stores the object and returns a URL recipients can fetch it from, or ""
// when the caller is expected to build a local serving URL itself.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) (string, error)
	Remove(ctx context.Context, key string) error
}
