// Package ffmpeg provides an [audio.Device] that captures the default
// microphone by running the ffmpeg binary and reading raw PCM from its
// stdout.
//
// The input format is chosen per operating system (avfoundation on macOS,
// pulse on Linux, dshow on Windows) and can be overridden with options.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/aiprof/pkg/audio"
)

// frameDuration is the length of audio delivered per frame.
const frameDuration = 20 * time.Millisecond

// defaultProbe is how long Acquire waits for ffmpeg to either produce audio
// or fail before it considers the device open.
const defaultProbe = 750 * time.Millisecond

// Device captures from a local microphone through ffmpeg.
type Device struct {
	binary string
	format string
	input  string
	probe  time.Duration
}

// Option configures a [Device].
type Option func(*Device)

// WithBinary overrides the ffmpeg executable (default "ffmpeg" from PATH).
func WithBinary(path string) Option {
	return func(d *Device) {
		if path != "" {
			d.binary = path
		}
	}
}

// WithInput overrides the ffmpeg input format and device,
// e.g. ("alsa", "hw:1").
func WithInput(format, input string) Option {
	return func(d *Device) {
		if format != "" {
			d.format = format
		}
		if input != "" {
			d.input = input
		}
	}
}

// WithProbe sets how long Acquire waits for ffmpeg to settle.
func WithProbe(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.probe = d
		}
	}
}

// New returns a Device for the current operating system's default
// microphone.
func New(opts ...Option) *Device {
	format, input := defaultInput(runtime.GOOS)
	d := &Device{
		binary: "ffmpeg",
		format: format,
		input:  input,
		probe:  defaultProbe,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// defaultInput returns the ffmpeg input format and device name for goos.
func defaultInput(goos string) (format, input string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// args builds the ffmpeg command line that writes s16le PCM to stdout.
func (d *Device) args(c audio.Constraints) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", d.format,
		"-i", d.input,
		"-ac", strconv.Itoa(c.Channels),
		"-ar", strconv.Itoa(c.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Acquire implements [audio.Device]. It starts ffmpeg and waits until audio
// flows, ffmpeg exits, the probe window passes, or ctx is cancelled.
func (d *Device) Acquire(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	c = c.WithDefaults()

	bin, err := exec.LookPath(d.binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s not found in PATH", audio.ErrNoDevice, d.binary)
	}

	cmd := exec.Command(bin, d.args(c)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	var stderr lockedBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: start: %v", audio.ErrNoDevice, err)
	}

	s := &stream{
		cmd:    cmd,
		frames: make(chan audio.AudioFrame, 50),
		exited: make(chan struct{}),
		first:  make(chan struct{}),
		track: audio.Track{
			ID:    fmt.Sprintf("ffmpeg-%d", cmd.Process.Pid),
			Kind:  audio.TrackAudio,
			Label: d.format + " " + d.input,
		},
	}
	go s.read(stdout, c)
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	probe := time.NewTimer(d.probe)
	defer probe.Stop()

	select {
	case <-s.first:
		return s, nil
	case <-probe.C:
		return s, nil
	case <-s.exited:
		return nil, classify(s.waitErr, stderr.String())
	case <-ctx.Done():
		_ = s.Stop()
		return nil, fmt.Errorf("ffmpeg: %w: %v", audio.ErrPermissionDenied, ctx.Err())
	}
}

// classify maps an early ffmpeg exit to the audio error taxonomy.
func classify(waitErr error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized") {
		return fmt.Errorf("ffmpeg: %w: %s", audio.ErrPermissionDenied, msg)
	}
	if msg == "" && waitErr != nil {
		msg = waitErr.Error()
	}
	return fmt.Errorf("ffmpeg: %w: %s", audio.ErrNoDevice, msg)
}

// stream is an ffmpeg capture process.
type stream struct {
	cmd    *exec.Cmd
	track  audio.Track
	frames chan audio.AudioFrame

	first     chan struct{}
	firstOnce sync.Once

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
}

func (s *stream) Tracks() []audio.Track { return []audio.Track{s.track} }

func (s *stream) Frames() <-chan audio.AudioFrame { return s.frames }

// Stop interrupts ffmpeg and waits briefly for it to exit, killing it if it
// does not.
func (s *stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		if sigErr := s.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			_ = s.cmd.Process.Kill()
		}
		select {
		case <-s.exited:
		case <-time.After(2 * time.Second):
			if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				err = fmt.Errorf("ffmpeg: kill: %w", killErr)
			}
			<-s.exited
		}
		slog.Debug("ffmpeg capture stopped", "track", s.track.ID)
	})
	return err
}

// read slices stdout into fixed-size frames until EOF.
func (s *stream) read(r io.Reader, c audio.Constraints) {
	defer close(s.frames)

	samples := int(frameDuration.Seconds() * float64(c.SampleRate))
	size := samples * c.Channels * 2
	var elapsed time.Duration

	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		s.firstOnce.Do(func() { close(s.first) })
		select {
		case s.frames <- audio.AudioFrame{
			Data:       buf,
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			Timestamp:  elapsed,
		}:
		default:
			// Slow consumer; drop the frame rather than stall ffmpeg.
		}
		elapsed += frameDuration
	}
}

// lockedBuffer is a bytes.Buffer safe for the concurrent write from
// exec.Cmd's stderr copier and the read in Acquire.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ audio.Device = (*Device)(nil)
