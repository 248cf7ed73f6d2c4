package web

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/aiprof/internal/analysis"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Analyzer == nil {
		writeError(w, r, fmt.Errorf("content analysis: %w", errUnavailable))
		return
	}

	var (
		c   analysis.Content
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		c, err = contentFromUpload(w, r)
	} else {
		err = decodeBody(w, r, &c)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.cfg.Analyzer.Analyze(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Analyzer == nil {
		writeError(w, r, fmt.Errorf("content analysis: %w", errUnavailable))
		return
	}
	var req analysis.ExplainRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	exp, err := s.cfg.Analyzer.Explain(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// contentFromUpload reads a multipart form with a "file" part and optional
// title, subject and learningMode fields. Only UTF-8 text files are
// accepted.
func contentFromUpload(w http.ResponseWriter, r *http.Request) (analysis.Content, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return analysis.Content{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return analysis.Content{}, fmt.Errorf("%w: missing file: %v", errBadRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return analysis.Content{}, fmt.Errorf("%w: read upload: %v", errBadRequest, err)
	}
	if !utf8.Valid(data) {
		return analysis.Content{}, fmt.Errorf("%w: %s is not a text file", errBadRequest, hdr.Filename)
	}

	title := r.FormValue("title")
	if title == "" {
		title = hdr.Filename
	}
	return analysis.Content{
		Kind:         analysis.KindFile,
		Text:         string(data),
		Title:        title,
		Subject:      r.FormValue("subject"),
		LearningMode: analysis.LearningMode(r.FormValue("learningMode")),
	}, nil
}
