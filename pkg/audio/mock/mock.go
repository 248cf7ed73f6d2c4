// Package mock provides in-memory mock implementations of [audio.Device] and
// [audio.Stream] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream()
//	dev := &mock.Device{AcquireResult: stream}
//	got, err := dev.Acquire(ctx, audio.Constraints{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aiprof/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Create it with
// [NewStream] so the frame channel is initialised.
type Stream struct {
	mu sync.Mutex

	// TracksResult is returned by [Stream.Tracks]. Defaults to a single audio
	// track when nil.
	TracksResult []audio.Track

	// StopError is returned by every call to [Stream.Stop].
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	frames  chan audio.AudioFrame
	stopped bool
	closed  bool
}

// NewStream returns a Stream whose frame channel buffers up to 64 frames.
func NewStream() *Stream {
	return &Stream{frames: make(chan audio.AudioFrame, 64)}
}

// Tracks implements [audio.Stream].
func (s *Stream) Tracks() []audio.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TracksResult == nil {
		return []audio.Track{{ID: "mock-mic", Kind: audio.TrackAudio, Label: "Mock Microphone"}}
	}
	return s.TracksResult
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.AudioFrame {
	return s.frames
}

// Push delivers a frame to readers of Frames. Frames pushed after Stop, or
// into a full buffer, are dropped.
func (s *Stream) Push(f audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- f:
	default:
	}
}

// Stop implements [audio.Stream]. It closes the frame channel on the first
// call and returns StopError every time.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.stopped = true
	s.closeLocked()
	return s.StopError
}

// End closes the frame channel without a Stop call, the way a real stream
// ends when its device disappears.
func (s *Stream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Stream) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopCalls returns the number of Stop invocations so far.
func (s *Stream) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStop
}

// ─── Device ───────────────────────────────────────────────────────────────────

// AcquireCall records the arguments of a single [Device.Acquire] invocation.
type AcquireCall struct {
	Constraints audio.Constraints
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// AcquireResult is the stream returned by Acquire. When nil, each call
	// returns a fresh [NewStream].
	AcquireResult audio.Stream

	// AcquireError is returned by Acquire when non-nil.
	AcquireError error

	// AcquireFunc, when set, replaces the canned results. It is called
	// without the mock's lock held so it may block on ctx.
	AcquireFunc func(ctx context.Context, c audio.Constraints) (audio.Stream, error)

	// AcquireCalls records all Acquire invocations.
	AcquireCalls []AcquireCall

	// Streams records every stream handed out, in order.
	Streams []audio.Stream
}

// Acquire implements [audio.Device].
func (d *Device) Acquire(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	d.mu.Lock()
	d.AcquireCalls = append(d.AcquireCalls, AcquireCall{Constraints: c})
	fn := d.AcquireFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.AcquireError != nil {
		return nil, d.AcquireError
	}
	s := d.AcquireResult
	if s == nil {
		s = NewStream()
	}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// SetError changes the error returned by subsequent Acquire calls.
func (d *Device) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireError = err
}

// CallCount returns the number of Acquire invocations so far.
func (d *Device) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.AcquireCalls)
}

// Ensure the mocks implement the interfaces at compile time.
var (
	_ audio.Stream = (*Stream)(nil)
	_ audio.Device = (*Device)(nil)
)
