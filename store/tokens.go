package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
)

// TokenStore issues and validates short-lived access tokens, each bound to
// exactly one stored file name.
type TokenStore interface {
	Mint(ctx context.Context, fileName string) (string, error)
	// Validate succeeds only while the token is present, unexpired and
	// bound to fileName. It is never valid for any other file.
	Validate(ctx context.Context, token, fileName string) error
}

type tokenEntry struct {
	fileName  string
	expiresAt time.Time
}

// MemoryTokenStoreImpl keeps tokens in-process. A janitor evicts expired
// entries eagerly so the map stays bounded; eviction and validation share
// one lock, so a token can never be half-evicted during a validation.
type MemoryTokenStoreImpl struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry

	ttl    time.Duration
	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logging.Logger
}

func NewMemoryTokenStoreImpl(ttl, cleanupInterval time.Duration, l logging.Logger) *MemoryTokenStoreImpl {
	ctx, cancel := context.WithCancel(context.Background())

	s := &MemoryTokenStoreImpl{
		tokens: make(map[string]tokenEntry),
		ttl:    ttl,
		now:    time.Now,
		cancel: cancel,
		logger: l,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.janitor(ctx, cleanupInterval)
	}()

	return s
}

func (s *MemoryTokenStoreImpl) Mint(_ context.Context, fileName string) (string, error) {
	token := uuid.NewString()

	s.mu.Lock()
	s.tokens[token] = tokenEntry{
		fileName:  fileName,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Info("access token minted", "file", fileName, "ttl", s.ttl)
	return token, nil
}

func (s *MemoryTokenStoreImpl) Validate(_ context.Context, token, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok {
		return apperrors.ErrTokenInvalid
	}
	if entry.fileName != fileName {
		return apperrors.ErrTokenInvalid
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.tokens, token)
		return apperrors.ErrTokenInvalid
	}
	return nil
}

func (s *MemoryTokenStoreImpl) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryTokenStoreImpl) evictExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for token, entry := range s.tokens {
		if !now.Before(entry.expiresAt) {
			delete(s.tokens, token)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("expired tokens evicted", "count", evicted, "remaining", len(s.tokens))
	}
}

func (s *MemoryTokenStoreImpl) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
