package services

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/metrics"
	"github.com/vidbridge/vidbridge/models"
	"github.com/vidbridge/vidbridge/store"
)

// ChunkRequest carries one chunk and the declarations that must stay
// stable for the life of its upload id.
type ChunkRequest struct {
	UploadId  string
	Name      string
	Index     uint32
	Total     uint32
	Size      uint64
	ChunkSize int64
	Origin    string
	TargetId  string
	Device    string
	Data      []byte
}

// ChunkResult reports progress after every applied chunk. Completed is
// non-nil exactly when this chunk finished the upload.
type ChunkResult struct {
	Received  uint32
	Total     uint32
	Percent   int
	Completed *models.StoredFile
}

// UploadManager reassembles out-of-order, resumable chunk streams into
// files on local disk.
type UploadManager interface {
	ApplyChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error)
	Session(uploadID string) (*models.UploadSession, error)
}

type uploadState struct {
	mu   sync.Mutex
	sess models.UploadSession
	file *os.File
}

type UploadManagerImpl struct {
	mu       sync.Mutex
	sessions map[string]*uploadState

	storage *store.LocalDiskStorageImpl
	tokens  store.TokenStore
	baseURL string
	idleTTL time.Duration

	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logging.Logger
}

func NewUploadManagerImpl(
	storage *store.LocalDiskStorageImpl,
	tokens store.TokenStore,
	baseURL string,
	idleTTL time.Duration,
	janitorInterval time.Duration,
	l logging.Logger,
) *UploadManagerImpl {
	ctx, cancel := context.WithCancel(context.Background())

	m := &UploadManagerImpl{
		sessions: make(map[string]*uploadState),
		storage:  storage,
		tokens:   tokens,
		baseURL:  baseURL,
		idleTTL:  idleTTL,
		now:      time.Now,
		cancel:   cancel,
		logger:   l,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.janitor(ctx, janitorInterval)
	}()

	return m
}

// ApplyChunk writes the chunk at offset index*chunkSize, creating the
// session on first contact. Re-applying an index overwrites the same byte
// range and does not double-count. When the received set reaches the
// declared total, the file is tokenized and the session discarded.
func (m *UploadManagerImpl) ApplyChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if req.UploadId == "" {
		return nil, apperrors.ErrMissingUploadID
	}
	if req.Total == 0 || req.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: total=%d chunkSize=%d", apperrors.ErrChunkMismatch, req.Total, req.ChunkSize)
	}
	if req.Index >= req.Total {
		return nil, fmt.Errorf("%w: index %d, total %d", apperrors.ErrChunkOutOfRange, req.Index, req.Total)
	}

	st, err := m.getOrCreate(req)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// The declarations recorded on first contact are authoritative.
	// Trusting re-declared values would corrupt every offset already
	// written, so mismatched resubmissions are rejected.
	if req.Total != st.sess.TotalChunks || req.ChunkSize != st.sess.ChunkSize ||
		req.Size != st.sess.FileSize || req.Name != st.sess.FileName {
		return nil, fmt.Errorf("%w: upload %s re-declared metadata", apperrors.ErrChunkMismatch, req.UploadId)
	}

	offset := int64(req.Index) * st.sess.ChunkSize
	if _, err := st.file.WriteAt(req.Data, offset); err != nil {
		metrics.UploadErrorsTotal.Inc()
		m.logger.Error("chunk write failed", "upload_id", req.UploadId, "index", req.Index, "offset", offset, "error", err)
		// Session stays intact so the sender can retry this index.
		return nil, fmt.Errorf("failed to write chunk %d: %w", req.Index, err)
	}

	st.sess.ReceivedChunks[req.Index] = struct{}{}
	st.sess.LastActivity = m.now()
	metrics.ChunksReceivedTotal.Inc()

	received := uint32(len(st.sess.ReceivedChunks))
	result := &ChunkResult{
		Received: received,
		Total:    st.sess.TotalChunks,
		Percent:  int(math.Round(float64(received) / float64(st.sess.TotalChunks) * 100)),
	}

	if received != st.sess.TotalChunks {
		return result, nil
	}

	completed, err := m.finalize(ctx, st)
	if err != nil {
		return nil, err
	}
	result.Completed = completed
	return result, nil
}

// Session returns a snapshot of an in-flight upload, mainly for resume
// decisions and tests.
func (m *UploadManagerImpl) Session(uploadID string) (*models.UploadSession, error) {
	m.mu.Lock()
	st, ok := m.sessions[uploadID]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	snapshot := st.sess
	snapshot.ReceivedChunks = make(map[uint32]struct{}, len(st.sess.ReceivedChunks))
	for i := range st.sess.ReceivedChunks {
		snapshot.ReceivedChunks[i] = struct{}{}
	}
	return &snapshot, nil
}

func (m *UploadManagerImpl) getOrCreate(req ChunkRequest) (*uploadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.sessions[req.UploadId]; ok {
		return st, nil
	}

	path, err := m.storage.Path(req.Name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}

	now := m.now()
	st := &uploadState{
		sess: models.UploadSession{
			UploadId:       req.UploadId,
			FileName:       req.Name,
			FilePath:       path,
			FileSize:       req.Size,
			TotalChunks:    req.Total,
			ChunkSize:      req.ChunkSize,
			OriginSession:  req.Origin,
			TargetSession:  req.TargetId,
			TargetDevice:   req.Device,
			ReceivedChunks: make(map[uint32]struct{}),
			CreatedAt:      now,
			LastActivity:   now,
		},
		file: f,
	}
	m.sessions[req.UploadId] = st
	metrics.ActiveUploads.Inc()

	m.logger.Info("upload session created", "upload_id", req.UploadId, "name", req.Name,
		"total_chunks", req.Total, "size", req.Size, "origin", req.Origin)
	return st, nil
}

// finalize runs with st.mu held. Any failure leaves the session intact
// with a writable file so the sender can retry the last chunk.
func (m *UploadManagerImpl) finalize(ctx context.Context, st *uploadState) (*models.StoredFile, error) {
	token, err := m.tokens.Mint(ctx, st.sess.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to mint access token: %w", err)
	}

	if err := st.file.Close(); err != nil {
		metrics.UploadErrorsTotal.Inc()
		if f, oerr := os.OpenFile(st.sess.FilePath, os.O_WRONLY, 0o644); oerr == nil {
			st.file = f
		}
		return nil, fmt.Errorf("failed to close upload file: %w", err)
	}

	m.mu.Lock()
	delete(m.sessions, st.sess.UploadId)
	m.mu.Unlock()
	metrics.ActiveUploads.Dec()
	metrics.UploadsCompletedTotal.Inc()

	m.logger.Info("upload completed", "upload_id", st.sess.UploadId, "name", st.sess.FileName,
		"size", st.sess.FileSize, "chunks", st.sess.TotalChunks)

	return &models.StoredFile{
		Name:      st.sess.FileName,
		Size:      st.sess.FileSize,
		Path:      st.sess.FilePath,
		URL:       PlayableURL(m.baseURL, st.sess.FileName, token),
		Token:     token,
		CreatedAt: m.now(),
	}, nil
}

// PlayableURL builds the token-gated streaming URL for a stored file.
func PlayableURL(baseURL, name, token string) string {
	return fmt.Sprintf("%s/uploads/%s?token=%s", baseURL, url.PathEscape(name), url.QueryEscape(token))
}

func (m *UploadManagerImpl) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectOrphans()
		}
	}
}

// collectOrphans drops sessions whose sender went quiet for longer than
// the idle window, bounding memory and disk held by abandoned uploads.
// m.mu and st.mu are never held together here: finalize acquires m.mu
// while holding st.mu, so nesting them the other way would deadlock.
func (m *UploadManagerImpl) collectOrphans() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	candidates := make(map[string]*uploadState, len(m.sessions))
	for id, st := range m.sessions {
		candidates[id] = st
	}
	m.mu.Unlock()

	for id, st := range candidates {
		st.mu.Lock()
		idle := st.sess.LastActivity.Before(cutoff)
		st.mu.Unlock()
		if !idle {
			continue
		}

		m.mu.Lock()
		current, ok := m.sessions[id]
		if !ok || current != st {
			// completed or recreated while unlocked
			m.mu.Unlock()
			continue
		}
		delete(m.sessions, id)
		m.mu.Unlock()

		st.mu.Lock()
		st.file.Close()
		os.Remove(st.sess.FilePath)
		m.logger.Warn("orphaned upload session collected", "upload_id", st.sess.UploadId,
			"name", st.sess.FileName, "received", len(st.sess.ReceivedChunks), "total", st.sess.TotalChunks)
		st.mu.Unlock()
		metrics.ActiveUploads.Dec()
	}
}

func (m *UploadManagerImpl) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.sessions {
		st.mu.Lock()
		st.file.Close()
		st.mu.Unlock()
	}
	return nil
}
