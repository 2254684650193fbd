package models

import "encoding/json"

// Transport event names. Client->server events are consumed by the
// websocket handler; server->client events are emitted through the
// Notifier.
const (
	EventConnected      = "connected"
	EventRegisterDevice = "register-device"
	EventUploadChunk    = "upload-chunk"
	EventUploadProgress = "upload-progress"
	EventUploadComplete = "upload-complete"
	EventUploadError    = "upload-error"
	EventSendVideoURL   = "send-video-url"
	EventDeliveryStatus = "delivery-status"
	EventMobileVideo    = "mobile-video"
)

// Envelope frames every text message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ConnectedPayload struct {
	SessionId string `json:"sessionId"`
}

type RegisterDevicePayload struct {
	Device string `json:"device"`
}

// ChunkMeta is the metadata half of an upload-chunk event. The chunk bytes
// follow in the next binary frame on the same connection.
type ChunkMeta struct {
	UploadId   string `json:"uploadId"`
	Name       string `json:"name"`
	Index      uint32 `json:"index"`
	Total      uint32 `json:"total"`
	Size       uint64 `json:"size"`
	TargetId   string `json:"targetId,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	ChunkSize  int64  `json:"chunkSize"`
}

type UploadProgressPayload struct {
	UploadId string `json:"uploadId"`
	Percent  int    `json:"percent"`
	Received uint32 `json:"received"`
	Total    uint32 `json:"total"`
}

type UploadCompletePayload struct {
	UploadId string `json:"uploadId"`
	Name     string `json:"name"`
	Size     uint64 `json:"size"`
	URL      string `json:"url"`
	Token    string `json:"token"`
}

type UploadErrorPayload struct {
	UploadId string `json:"uploadId"`
	Message  string `json:"message"`
}

type SendVideoURLPayload struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	TargetId string `json:"targetId,omitempty"`
}

// DeliveryStatus reports a delivery outcome back to the origin session.
type DeliveryStatus struct {
	UploadId   string `json:"uploadId,omitempty"`
	Delivered  bool   `json:"delivered"`
	To         string `json:"to,omitempty"`
	Recipients int    `json:"recipients"`
	Reason     string `json:"reason,omitempty"`
}

// MobileVideo notifies a recipient that a video is ready to play.
type MobileVideo struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	URL         string `json:"url"`
	From        string `json:"from"`
	IsDirectUrl bool   `json:"isDirectUrl,omitempty"`
}
