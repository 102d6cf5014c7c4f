// Package checksum computes SHA-256 digests of attachment bodies. Storage
// backends hash while they write; clients verify what they download.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Reader hashes and counts everything read through it.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (c *Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (c *Reader) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}

// N returns the number of bytes read so far.
func (c *Reader) N() int64 {
	return c.n
}

// CalculateSHA256 returns the hex SHA-256 of everything in reader.
func CalculateSHA256(reader io.Reader) (string, error) {
	c := NewReader(reader)
	if _, err := io.Copy(io.Discard, c); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return c.Sum(), nil
}

// VerifySHA256 reports whether reader hashes to expected. The comparison is
// case-insensitive.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, strings.TrimSpace(expected)), nil
}
