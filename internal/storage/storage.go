// Package storage defines the attachment storage backend interface.
//
// Backends register themselves with the factory from an init() function in
// their own package, and cmd/server selects one by name with a blank import:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by Open when no object exists at the key.
var ErrObjectNotFound = errors.New("storage: object not found")

// ErrInvalidKey is returned for keys that are empty or escape the backend root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Storage stores attachment bodies by key.
type Storage interface {
	// Put writes the body at key and returns its size and SHA-256.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (*Object, error)

	// Open returns the body stored at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by backends that can hand out time-limited direct
// download URLs. Backends without it are streamed through the API.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Object describes a stored body.
type Object struct {
	Key string
	// Size is the body length in bytes.
	Size int64
	// Checksum is the hex SHA-256 of the body.
	Checksum string
}

// ValidateKey rejects keys a backend must not write: empty, absolute, or
// containing a ".." segment.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// AttachmentKey is the key an attachment body is stored under.
func AttachmentKey(orgID, boardID, feedbackID, attachmentID string) string {
	return strings.Join([]string{"attachments", orgID, boardID, feedbackID, attachmentID}, "/")
}
