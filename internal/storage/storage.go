// Package storage defines the Storage interface that holds request documents
// and the registry of backends that implement it.
//
// Backends register themselves from an init() function in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// internal/api blank-imports every backend package.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned (wrapped) by Download when the object is missing.
var ErrNotFound = errors.New("object not found")

// ErrSignedURLUnsupported is returned by GetURL on backends that cannot hand
// out direct links. Callers stream the object through Download instead.
var ErrSignedURLUnsupported = errors.New("signed urls are not supported by this backend")

// Storage is implemented by every document storage backend. All objects live
// in the single configured container.
type Storage interface {
	// Upload stores an object and returns its size and SHA256 checksum.
	Upload(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (*UploadResult, error)

	// Download opens an object for reading.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// GetURL returns a time-limited direct download URL.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists reports whether an object is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	Path     string
	Size     int64
	Checksum string
}

// ObjectPath builds the key a document is stored under:
// <deal>/<request>/<document>-<filename>. The filename must already have
// passed validation.ValidateFileName.
func ObjectPath(dealID, requestID, documentID, filename string) string {
	name := strings.ReplaceAll(filename, " ", "_")
	return path.Join(dealID, requestID, documentID+"-"+name)
}
