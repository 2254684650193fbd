package models

import "time"

// StoredFile describes a fully reassembled (or directly uploaded) file
// that is ready to be served to recipients.
type StoredFile struct {
	Name      string
	Size      uint64
	Path      string // local path, empty when only a remote copy exists
	URL       string // playable URL carrying the access token
	Token     string
	CreatedAt time.Time
}
