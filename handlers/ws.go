package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/models"
	"github.com/vidbridge/vidbridge/registry"
	"github.com/vidbridge/vidbridge/services"
)

type wsClient struct {
	conn      *websocket.Conn
	sessionID string

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// pendingChunk holds the metadata of an upload-chunk envelope until
	// its binary frame arrives. Only the connection's read loop touches
	// it, so no lock is needed.
	pendingChunk *models.ChunkMeta
}

func (c *wsClient) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(models.Envelope{Event: event, Data: data})
}

// Hub owns the websocket connections, translates transport events into
// core calls, and implements services.Notifier for the delivery router.
type Hub struct {
	upgrader websocket.Upgrader
	registry registry.Registry
	uploads  services.UploadManager
	router   services.Router

	mu      sync.RWMutex
	clients map[string]*wsClient

	logger logging.Logger
}

func NewHub(reg registry.Registry, uploads services.UploadManager, corsOrigin string, l logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				if corsOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == corsOrigin
			},
		},
		registry: reg,
		uploads:  uploads,
		clients:  make(map[string]*wsClient),
		logger:   l,
	}
}

// SetRouter wires the delivery router after construction; the router
// itself needs the hub as its Notifier.
func (h *Hub) SetRouter(router services.Router) {
	h.router = router
}

// Notify implements services.Notifier.
func (h *Hub) Notify(sessionID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s is not connected", sessionID)
	}
	return client.send(event, payload)
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, sessionID: uuid.NewString()}

	h.mu.Lock()
	h.clients[client.sessionID] = client
	h.mu.Unlock()
	h.registry.Register(client.sessionID, "")

	h.logger.Info("client connected", "session_id", client.sessionID, "remote", conn.RemoteAddr().String())
	_ = client.send(models.EventConnected, models.ConnectedPayload{SessionId: client.sessionID})

	defer func() {
		h.registry.Unregister(client.sessionID)
		h.mu.Lock()
		delete(h.clients, client.sessionID)
		h.mu.Unlock()
		conn.Close()
		h.logger.Info("client disconnected", "session_id", client.sessionID)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read error", "session_id", client.sessionID, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			h.handleChunkBytes(r.Context(), client, data)
		case websocket.TextMessage:
			h.handleEnvelope(client, data)
		}
	}
}

func (h *Hub) handleEnvelope(client *wsClient, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("malformed envelope", "session_id", client.sessionID, "error", err)
		return
	}

	switch env.Event {
	case models.EventRegisterDevice:
		var payload models.RegisterDevicePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.logger.Warn("malformed register-device payload", "session_id", client.sessionID, "error", err)
			return
		}
		h.registry.Register(client.sessionID, payload.Device)
		h.logger.Info("device registered", "session_id", client.sessionID, "device", payload.Device)

	case models.EventUploadChunk:
		var meta models.ChunkMeta
		if err := json.Unmarshal(env.Data, &meta); err != nil {
			_ = client.send(models.EventUploadError, models.UploadErrorPayload{Message: "malformed chunk metadata"})
			return
		}
		client.pendingChunk = &meta

	case models.EventSendVideoURL:
		var payload models.SendVideoURLPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			_ = client.send(models.EventDeliveryStatus, models.DeliveryStatus{Delivered: false, Reason: "invalid-url"})
			return
		}
		status := h.router.DeliverURL(client.sessionID, payload.URL, payload.Name, payload.TargetId)
		_ = client.send(models.EventDeliveryStatus, status)

	default:
		h.logger.Debug("unknown event ignored", "session_id", client.sessionID, "event", env.Event)
	}
}

func (h *Hub) handleChunkBytes(ctx context.Context, client *wsClient, data []byte) {
	meta := client.pendingChunk
	if meta == nil {
		h.logger.Warn("binary frame without chunk metadata", "session_id", client.sessionID)
		return
	}
	client.pendingChunk = nil

	result, err := h.uploads.ApplyChunk(ctx, services.ChunkRequest{
		UploadId:  meta.UploadId,
		Name:      meta.Name,
		Index:     meta.Index,
		Total:     meta.Total,
		Size:      meta.Size,
		ChunkSize: meta.ChunkSize,
		Origin:    client.sessionID,
		TargetId:  meta.TargetId,
		Device:    meta.DeviceType,
		Data:      data,
	})
	if err != nil {
		_ = client.send(models.EventUploadError, models.UploadErrorPayload{
			UploadId: meta.UploadId,
			Message:  err.Error(),
		})
		return
	}

	_ = client.send(models.EventUploadProgress, models.UploadProgressPayload{
		UploadId: meta.UploadId,
		Percent:  result.Percent,
		Received: result.Received,
		Total:    result.Total,
	})

	if result.Completed == nil {
		return
	}

	file := result.Completed
	_ = client.send(models.EventUploadComplete, models.UploadCompletePayload{
		UploadId: meta.UploadId,
		Name:     file.Name,
		Size:     file.Size,
		URL:      file.URL,
		Token:    file.Token,
	})

	notice := models.MobileVideo{
		Name: file.Name,
		Size: file.Size,
		URL:  file.URL,
		From: client.sessionID,
	}
	status := h.router.Deliver(client.sessionID, notice, meta.TargetId, meta.DeviceType)
	status.UploadId = meta.UploadId
	_ = client.send(models.EventDeliveryStatus, status)
}

// Shutdown closes every connection; read loops unwind and unregister.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		client.conn.Close()
	}
	return nil
}
