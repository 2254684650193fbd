package models

import "time"

// ClientSession is one connected transport client. Device stays empty until
// the client registers a role; an empty device keeps the connection alive
// but makes the session ineligible as a delivery target.
type ClientSession struct {
	SessionId   string
	Device      string
	ConnectedAt time.Time
}

// UploadSession represents one in-flight chunked upload. It is created
// lazily on the first chunk for a new upload id and destroyed the moment
// every declared chunk has been received. It does not survive a restart.
type UploadSession struct {
	UploadId      string
	FileName      string // sanitized name of the stored file
	FilePath      string // destination path on local disk
	FileSize      uint64 // declared total size in bytes
	TotalChunks   uint32 // declared number of chunks
	ChunkSize     int64  // declared size of every chunk except possibly the last
	OriginSession string // transport session sending the chunks
	TargetSession string // requested delivery target, empty for broadcast
	TargetDevice  string // device role required of recipients

	// ReceivedChunks is the set of chunk indices written at least once.
	// Re-delivery of an index is idempotent.
	ReceivedChunks map[uint32]struct{}

	CreatedAt    time.Time
	LastActivity time.Time
}
