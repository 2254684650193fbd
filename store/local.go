package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
)

// LocalDiskStorageImpl stores objects as plain files under one directory.
// It returns no URL from Put: local files are served by the token-gated
// file server, which builds its own URLs.
type LocalDiskStorageImpl struct {
	dir    string
	logger logging.Logger
}

func NewLocalDiskStorageImpl(dir string, l logging.Logger) (*LocalDiskStorageImpl, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &LocalDiskStorageImpl{dir: dir, logger: l}, nil
}

func (s *LocalDiskStorageImpl) Dir() string {
	return s.dir
}

// Path resolves key inside the storage directory, rejecting traversal.
func (s *LocalDiskStorageImpl) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.Contains(key, "..") {
		return "", apperrors.ErrUnsafeName
	}
	return filepath.Join(s.dir, key), nil
}

func (s *LocalDiskStorageImpl) Put(_ context.Context, key string, body io.Reader, size int64) (string, error) {
	path, err := s.Path(key)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		s.logger.Error("failed to write object", "key", key, "error", err)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if size > 0 && written != size {
		os.Remove(path)
		return "", fmt.Errorf("short write: got %d bytes, expected %d", written, size)
	}

	s.logger.Info("object stored on disk", "key", key, "bytes", written)
	return "", nil
}

func (s *LocalDiskStorageImpl) Remove(_ context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Stat reports the size of a stored object, or ErrFileNotFound.
func (s *LocalDiskStorageImpl) Stat(key string) (int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, apperrors.ErrFileNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Open opens a stored object for reading.
func (s *LocalDiskStorageImpl) Open(key string) (*os.File, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, apperrors.ErrFileNotFound
	}
	return f, err
}
