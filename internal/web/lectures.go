package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/MrWong99/aiprof/internal/kv"
	lec "github.com/MrWong99/aiprof/internal/lecture"
	"github.com/MrWong99/aiprof/internal/locale"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

type stopResponse struct {
	Stopped bool             `json:"stopped"`
	Session *lecture.Session `json:"session,omitempty"`
}

type currentResponse struct {
	Session   lecture.Session `json:"session"`
	Recording bool            `json:"recording"`
	Level     float64         `json:"level"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var cfg lecture.Config
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.cfg.Lectures.Start(r.Context(), cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sess, stopped, err := s.cfg.Lectures.Stop(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := stopResponse{Stopped: stopped}
	if stopped {
		resp.Session = &sess
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.cfg.Lectures.Current()
	if !ok {
		writeError(w, r, fmt.Errorf("no session yet: %w", kv.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, currentResponse{
		Session:   sess,
		Recording: sess.Status == lecture.StatusRecording,
		Level:     s.cfg.Lectures.Level(),
	})
}

// handleList returns persisted sessions, newest first. ?status= filters by
// status.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, r, fmt.Errorf("session store: %w", errUnavailable))
		return
	}
	sessions, err := lec.ListSessions(r.Context(), s.cfg.Store)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if st := lecture.Status(r.URL.Query().Get("status")); st != "" {
		if !st.IsValid() {
			writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, st))
			return
		}
		sessions = slices.DeleteFunc(sessions, func(x lecture.Session) bool { return x.Status != st })
	}
	slices.SortStableFunc(sessions, func(a, b lecture.Session) int {
		return b.StartTime.Compare(a.StartTime)
	})
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, r, fmt.Errorf("session store: %w", errUnavailable))
		return
	}
	sess, err := lec.LoadSession(r.Context(), s.cfg.Store, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, locale.Languages)
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q, want application/json", errBadRequest, ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
