// Package cache stores synthesized speech so repeated text (the manual test
// phrase, short stock replies) is not sent to the TTS backend again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Common cache errors.
var (
	// ErrNotFound is returned on a cache miss.
	ErrNotFound = errors.New("cache entry not found")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidEntry is returned when storing a nil or empty entry.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const (
	defaultTTL        = 24 * time.Hour
	defaultMaxEntries = 64
	defaultPrefix     = "valper"
)

// Entry is a cached audio payload.
type Entry struct {
	Data        []byte
	ContentType string
}

// Store is a synthesis cache backend.
type Store interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores a copy of e under key.
	Set(ctx context.Context, key string, e *Entry) error
}

// SynthesisKey derives the cache key for text spoken with voice.
func SynthesisKey(voice, text string) string {
	h := sha256.New()
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func copyEntry(e *Entry) *Entry {
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	return &Entry{Data: data, ContentType: e.ContentType}
}

func validate(key string, e *Entry) error {
	if key == "" {
		return ErrInvalidKey
	}
	if e == nil || len(e.Data) == 0 {
		return ErrInvalidEntry
	}
	return nil
}
