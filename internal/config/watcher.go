package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher stats the config file.
const defaultPollInterval = 5 * time.Second

// Watcher keeps a config file's settings current while the server runs. When
// the file changes and still validates, the hot-reloadable differences are
// handed to the apply callback. Invalid edits are logged once per distinct
// content and the previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(ConfigDiff)

	mu       sync.Mutex
	current  *Config
	raw      []byte
	stamp    fileStamp
	rejected []byte

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp is the cheap change check done before the file is read.
type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(fi os.FileInfo) fileStamp { return fileStamp{mod: fi.ModTime(), size: fi.Size()} }

func (s fileStamp) equal(o fileStamp) bool { return s.size == o.size && s.mod.Equal(o.mod) }

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it in the background. apply may
// be nil; it is called from the polling goroutine, or from [Watcher.Reload],
// and only when [ConfigDiff.Changed] reports something to apply or warn
// about.
func NewWatcher(path string, apply func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		apply:    apply,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.raw, w.stamp = cfg, data, stampOf(fi)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.poll(ctx)
	return w, nil
}

// Current returns the config that is in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight reload to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(w.cancel)
	<-w.done
}

// Reload reads the file now, regardless of its modification time. It
// returns the applied diff, which is empty when the content did not change,
// or the validation error of a rejected edit.
func (w *Watcher) Reload() (ConfigDiff, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: reload %s: %w", w.path, err)
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: reload %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.stamp = stampOf(fi)
	if bytes.Equal(data, w.raw) {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		repeated := bytes.Equal(data, w.rejected)
		w.rejected = data
		w.mu.Unlock()
		if !repeated {
			slog.Warn("config: edit rejected, keeping previous settings", "path", w.path, "err", err)
		}
		return ConfigDiff{}, fmt.Errorf("config: reload %s: %w", w.path, err)
	}
	d := Diff(w.current, cfg)
	w.current, w.raw, w.rejected = cfg, data, nil
	w.mu.Unlock()

	if !d.Changed() {
		slog.Debug("config: reloaded without effective changes", "path", w.path)
		return d, nil
	}
	slog.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"lecture_changed", d.LectureChanged,
		"restart_required", d.RestartRequired,
	)
	if w.apply != nil {
		w.apply(d)
	}
	return d, nil
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fi, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config: stat watched file", "path", w.path, "err", err)
			continue
		}
		w.mu.Lock()
		same := stampOf(fi).equal(w.stamp)
		w.mu.Unlock()
		if same {
			continue
		}
		// Errors are logged by Reload.
		_, _ = w.Reload()
	}
}
