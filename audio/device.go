package audio

import (
	"context"
	"io"
)

// Microphone opens raw PCM input streams.
type Microphone interface {
	// Open acquires the input device. Read on the returned stream yields
	// little-endian PCM in Format(); Close releases the device.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Format reports the PCM format of opened streams.
	Format() Format
}

// Speaker plays encoded audio artifacts.
type Speaker interface {
	// Play blocks until the artifact finished playing, playback failed, or
	// ctx was cancelled, in which case it returns ctx.Err().
	Play(ctx context.Context, a *Artifact) error
}
