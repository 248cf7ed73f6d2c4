package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/pkg/audio/ffmpeg"
)

func TestOptString(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"format": "pulse", "rate": 16000}
	tests := []struct {
		opts map[string]any
		key  string
		want string
	}{
		{nil, "format", ""},
		{opts, "format", "pulse"},
		{opts, "rate", ""},
		{opts, "missing", ""},
	}
	for _, tt := range tests {
		if got := optString(tt.opts, tt.key); got != tt.want {
			t.Errorf("optString(%v, %q) = %q, want %q", tt.opts, tt.key, got, tt.want)
		}
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			Capture: config.ProviderEntry{Name: "ffmpeg", Options: map[string]any{"format": "alsa", "input": "hw:1"}},
		},
	}
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if _, ok := ps.Capture.(*ffmpeg.Device); !ok {
		t.Errorf("capture = %T, want *ffmpeg.Device", ps.Capture)
	}
	if ps.LLM != nil {
		t.Error("llm should be nil when not configured")
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		name  string
		entry config.ProviderEntry
	}{
		{"unregistered", config.ProviderEntry{Name: "nope", Model: "x"}},
		{"openai without key", config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
		{"missing model", config.ProviderEntry{Name: "ollama"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{Providers: config.ProvidersConfig{LLM: tt.entry}}
			if _, err := buildProviders(cfg, reg); err == nil {
				t.Error("expected an error")
			}
		})
	}

	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "nope"}}}
	_, err := buildProviders(cfg, reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestReadContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Mitochondria produce ATP."), 0o600); err != nil {
		t.Fatal(err)
	}

	var c analysis.Content
	if err := readContent(nil, path, &c); err != nil {
		t.Fatalf("readContent: %v", err)
	}
	if c.Kind != analysis.KindFile || c.Title != "notes.txt" || c.Text != "Mitochondria produce ATP." {
		t.Errorf("content = %+v", c)
	}

	c = analysis.Content{Title: "Mine"}
	if err := readContent(strings.NewReader("from stdin"), "-", &c); err != nil {
		t.Fatalf("readContent stdin: %v", err)
	}
	if c.Kind != analysis.KindText || c.Title != "Mine" || c.Text != "from stdin" {
		t.Errorf("stdin content = %+v", c)
	}

	if err := readContent(bytes.NewReader([]byte{0xff, 0xfe}), "-", &c); err == nil {
		t.Error("expected an error for non UTF-8 input")
	}
	if err := readContent(nil, filepath.Join(dir, "missing.txt"), &c); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLevelValue(t *testing.T) {
	t.Parallel()

	var l analysis.Level
	v := levelValue{&l}
	if err := v.Set("graduate"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v.String() != "graduate" {
		t.Errorf("String() = %q", v.String())
	}
	if err := v.Set("kindergarten"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStartupSummary(&buf, &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "anthropic", Model: "claude-3-5-sonnet-latest"}},
	})
	out := buf.String()
	for _, want := range []string{"(not configured)", "memory", "(disabled)", ":8080", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "aiprof "+Version {
		t.Errorf("output = %q", got)
	}
}
