// Package archive keeps an append-only record of finished lecture sessions.
// Each completed or failed session is written as one JSON line to a local
// file, so the history survives even when the key-value store is ephemeral.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

// Record is a single line in the archive file.
type Record struct {
	ArchivedAt time.Time       `json:"archivedAt"`
	Session    lecture.Session `json:"session"`
}

// FileArchive appends finished sessions as JSON lines to a local file.
// Safe for concurrent use.
type FileArchive struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a FileArchive that writes to path. The file is created on the
// first write.
func New(path string) *FileArchive {
	return &FileArchive{path: path, now: time.Now}
}

// Path returns the file the archive writes to.
func (a *FileArchive) Path() string { return a.path }

// Append writes s to the archive. Sessions that have not reached a terminal
// status are rejected.
func (a *FileArchive) Append(s lecture.Session) error {
	if !s.Status.IsTerminal() {
		return fmt.Errorf("archive: session %s is %s, not finished", s.ID, s.Status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(Record{ArchivedAt: a.now().UTC(), Session: s})
	if err != nil {
		return fmt.Errorf("archive: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("archive: write: %w", err)
	}
	return nil
}

// Consume is a lecture.Consumer. Write failures are logged, not returned.
func (a *FileArchive) Consume(s lecture.Session) {
	if err := a.Append(s); err != nil {
		slog.Warn("failed to archive session", "session_id", s.ID, "err", err)
	}
}

// Load reads every record in the archive in write order. A missing file
// yields no records. Lines that fail to decode are skipped with a warning.
func (a *FileArchive) Load(ctx context.Context) ([]Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			slog.Warn("skipping corrupt archive line", "path", a.path, "line", line, "err", err)
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("archive: read: %w", err)
	}
	return out, nil
}
