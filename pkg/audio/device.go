// Package audio defines the capture-device abstraction used to record a live
// lecture.
//
// The two primary abstractions are:
//
//   - [Device]: grants access to a microphone and returns a [Stream].
//   - [Stream]: the acquired capture: its tracks, the frames it produces and
//     a Stop method that releases every track.
//
// Implementations live in adapter packages (audio/ffmpeg for a local
// microphone, audio/mock for tests). The interfaces are intentionally narrow
// so the recording controller never depends on how audio is captured.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by [Device.Acquire] when the user or the
	// operating system refuses microphone access.
	ErrPermissionDenied = errors.New("audio: permission denied")

	// ErrNoDevice is returned by [Device.Acquire] when no capture device is
	// available.
	ErrNoDevice = errors.New("audio: no capture device")

	// ErrDeviceLost reports that a [Stream] ended on its own while it was
	// still in use, for example because the microphone was unplugged.
	ErrDeviceLost = errors.New("audio: capture device stopped")
)

// TrackKind classifies a media track inside a [Stream].
type TrackKind string

// TrackAudio is the only kind a lecture capture requests.
const TrackAudio TrackKind = "audio"

// Track describes one media track held by a [Stream].
type Track struct {
	// ID is an implementation-specific identifier, stable for the stream's
	// lifetime.
	ID string

	// Kind is always [TrackAudio] for lecture capture.
	Kind TrackKind

	// Label is a human-readable device name, e.g. "MacBook Pro Microphone".
	Label string
}

// Constraints narrows what [Device.Acquire] should open. Zero values select
// the implementation default.
type Constraints struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// Channels: 1 for mono. Default: 1.
	Channels int
}

// WithDefaults returns c with zero fields replaced by the defaults used for
// lecture capture (16 kHz mono).
func (c Constraints) WithDefaults() Constraints {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// Stream is an acquired capture. Implementations must be safe for concurrent
// use.
type Stream interface {
	// Tracks returns the tracks held by this stream.
	Tracks() []Track

	// Frames returns a read-only channel of captured audio. The channel is
	// closed after Stop, or when the underlying device ends.
	Frames() <-chan AudioFrame

	// Stop releases every track. It is safe to call more than once; later
	// calls are no-ops and return nil.
	Stop() error
}

// Device grants access to a capture device.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Acquire opens the device for audio only. ctx bounds the acquisition
	// (including any permission prompt); once acquired, the Stream stays
	// open until [Stream.Stop] is called.
	//
	// Returns an error wrapping [ErrPermissionDenied] or [ErrNoDevice] when
	// access is refused or nothing can be opened.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}
