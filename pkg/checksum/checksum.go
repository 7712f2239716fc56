// Package checksum computes the SHA-256 digests stored with every document.
// Storage backends record the digest as object metadata and return it so the
// document row carries the same value.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// SHA256 returns the hex digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	h := NewWriter(io.Discard)
	if _, err := io.Copy(h, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return h.Sum(), nil
}

// VerifySHA256 verifies that the checksum of data matches the expected checksum
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return actual == expectedChecksum, nil
}

// Writer passes writes through to an underlying writer while hashing them.
type Writer struct {
	w       io.Writer
	h       hash.Hash
	written int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: sha256.New()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.h.Write(p[:n])
	cw.written += int64(n)
	return n, err
}

// Sum returns the hex digest of everything written so far.
func (cw *Writer) Sum() string {
	return hex.EncodeToString(cw.h.Sum(nil))
}

// Written reports how many bytes passed through.
func (cw *Writer) Written() int64 { return cw.written }
