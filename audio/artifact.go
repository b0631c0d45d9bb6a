// Package audio provides the capture and playback sessions of the voice
// client and the device backends they run on (ffmpeg/ffplay processes by
// default, PortAudio when built with the portaudio tag).
package audio

import (
	"bytes"
	"io"
	"time"

	"github.com/google/uuid"
)

// Content types produced or accepted by the client.
const (
	ContentTypeWAV         = "audio/wav"
	ContentTypeOctetStream = "application/octet-stream"
)

// Artifact is an immutable audio payload: a recording produced by a
// CaptureSession or speech returned by the synthesis service.
//
// The payload is copied in at construction and only handed out as a reader
// or as a fresh copy, so no consumer can mutate what another one sees.
type Artifact struct {
	id          string
	data        []byte
	contentType string
	createdAt   time.Time
}

// NewArtifact copies data into a new artifact. An empty content type
// defaults to application/octet-stream.
func NewArtifact(data []byte, contentType string) *Artifact {
	if contentType == "" {
		contentType = ContentTypeOctetStream
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Artifact{
		id:          uuid.NewString(),
		data:        buf,
		contentType: contentType,
		createdAt:   time.Now(),
	}
}

// ID returns the artifact identifier.
func (a *Artifact) ID() string { return a.id }

// ContentType returns the MIME type of the payload.
func (a *Artifact) ContentType() string { return a.contentType }

// CreatedAt returns when the artifact was produced.
func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

// Len returns the payload size in bytes.
func (a *Artifact) Len() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// Reader returns a new reader over the payload.
func (a *Artifact) Reader() io.Reader { return bytes.NewReader(a.data) }

// Bytes returns a copy of the payload.
func (a *Artifact) Bytes() []byte {
	buf := make([]byte, len(a.data))
	copy(buf, a.data)
	return buf
}
