package registry

import (
	"sync"
	"time"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/models"
)

// Registry tracks connected transport sessions and their declared device
// role, and answers "who" for the delivery router. It never delivers
// anything itself.
type Registry interface {
	Register(sessionID, device string)
	Unregister(sessionID string)
	Resolve(sessionID string) (*models.ClientSession, error)
	// BroadcastRecipients returns every session whose device matches
	// requiredDevice, excluding excludeID. Order is unspecified.
	BroadcastRecipients(excludeID, requiredDevice string) []string
}

type RegistryImpl struct {
	mu       sync.RWMutex
	sessions map[string]*models.ClientSession
}

func NewRegistryImpl() *RegistryImpl {
	return &RegistryImpl{
		sessions: make(map[string]*models.ClientSession),
	}
}

// Register is an idempotent upsert. Registering with an empty device keeps
// the session connected but makes it ineligible as a delivery target.
func (r *RegistryImpl) Register(sessionID, device string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.Device = device
		return
	}
	r.sessions[sessionID] = &models.ClientSession{
		SessionId:   sessionID,
		Device:      device,
		ConnectedAt: time.Now(),
	}
}

// Unregister removes the session entirely. Any delivery targeting it
// afterwards resolves to not-found.
func (r *RegistryImpl) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *RegistryImpl) Resolve(sessionID string) (*models.ClientSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrTargetNotFound
	}
	snapshot := *s
	return &snapshot, nil
}

func (r *RegistryImpl) BroadcastRecipients(excludeID, requiredDevice string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, s := range r.sessions {
		if id == excludeID {
			continue
		}
		if requiredDevice != "" && s.Device != requiredDevice {
			continue
		}
		if requiredDevice == "" && s.Device == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}
