package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/internal/resilience"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// maxInputBytes matches the upload limit of the HTTP API.
const maxInputBytes = 10 << 20

func analyzeCmd(configPath *string) *cobra.Command {
	var (
		url     string
		title   string
		subject string
		mode    string
	)

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Generate a quiz and fact-checks for study material",
		Long: `Generate a quiz and fact-checks for study material and print them as JSON.

The material is read from the file argument, from stdin when the argument
is "-" or missing, or taken from --url (the address is not fetched).

Examples:
  aiprof analyze notes.txt --subject Biology
  cat notes.txt | aiprof analyze --mode visual
  aiprof analyze --url https://example.org/article`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := analysis.Content{
				Title:        title,
				Subject:      subject,
				LearningMode: analysis.LearningMode(mode),
			}
			if url != "" {
				if len(args) > 0 {
					return errors.New("pass either a file or --url, not both")
				}
				c.Kind = analysis.KindURL
				c.URL = url
			} else {
				path := "-"
				if len(args) > 0 {
					path = args[0]
				}
				if err := readContent(cmd.InOrStdin(), path, &c); err != nil {
					return err
				}
			}

			svc, err := newAnalysisService(*configPath)
			if err != nil {
				return err
			}
			res, err := svc.Analyze(cmd.Context(), c)
			if err != nil {
				return userError(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "", "analyse a URL instead of a file")
	f.StringVar(&title, "title", "", "title of the material (defaults to the file name)")
	f.StringVar(&subject, "subject", "", "academic subject")
	f.StringVar(&mode, "mode", string(analysis.ModeStandard), "learning mode: standard, audio or visual")
	return cmd
}

func explainCmd(configPath *string) *cobra.Command {
	var req analysis.ExplainRequest

	cmd := &cobra.Command{
		Use:   "explain <topic>",
		Short: "Explain a topic with academic sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Topic = args[0]
			svc, err := newAnalysisService(*configPath)
			if err != nil {
				return err
			}
			exp, err := svc.Explain(cmd.Context(), req)
			if err != nil {
				return userError(err)
			}
			return printJSON(cmd.OutOrStdout(), exp)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Subject, "subject", "", "academic subject (required)")
	f.StringVar(&req.Language, "language", "", "answer language")
	f.Var(levelValue{&req.Level}, "level", "undergraduate, graduate, doctorate or expert")
	return cmd
}

// readContent fills c from path, or from stdin when path is "-".
func readContent(stdin io.Reader, path string, c *analysis.Content) error {
	var (
		r    io.Reader = stdin
		name string
	)
	if path != "-" {
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		defer fh.Close()
		r = fh
		name = filepath.Base(path)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	if len(data) > maxInputBytes {
		return fmt.Errorf("content exceeds %d bytes", maxInputBytes)
	}
	if !utf8.Valid(data) {
		return errors.New("content is not UTF-8 text")
	}

	c.Text = string(data)
	c.Kind = analysis.KindText
	if name != "" {
		c.Kind = analysis.KindFile
		if c.Title == "" {
			c.Title = name
		}
	}
	return nil
}

// newAnalysisService builds the analysis service from the configured LLM
// only; no store or microphone is opened.
func newAnalysisService(configPath string) (*analysis.Service, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(slogLevelQuiet(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, level))

	if cfg.Providers.LLM.Name == "" {
		return nil, errors.New("providers.llm is not configured")
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}

	ac := cfg.Analysis.WithDefaults()
	return analysis.New(p, analysis.Config{
		ProviderName: cfg.Providers.LLM.Name,
		Timeout:      ac.Timeout,
		Temperature:  ac.Temperature,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  ac.MaxFailures,
			ResetTimeout: ac.ResetTimeout,
		},
	}), nil
}

// slogLevelQuiet keeps one-shot commands at warn unless debug is asked for,
// so that stdout stays clean JSON and stderr stays short.
func slogLevelQuiet(l config.LogLevel) slog.Level {
	if l == config.LogDebug {
		return slog.LevelDebug
	}
	if l == config.LogError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// userError keeps the technical cause in the log and returns the message a
// user should see.
func userError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ext *lecture.ExternalServiceError
	if errors.As(err, &ext) {
		slog.Error("analysis failed", "err", err)
		return errors.New(lecture.UserMessage(err))
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// levelValue adapts [analysis.Level] to pflag.Value.
type levelValue struct{ l *analysis.Level }

func (v levelValue) String() string {
	if v.l == nil {
		return ""
	}
	return string(*v.l)
}

func (v levelValue) Set(s string) error {
	l := analysis.Level(s)
	if !l.IsValid() {
		return fmt.Errorf("unknown level %q", s)
	}
	*v.l = l
	return nil
}

func (levelValue) Type() string { return "level" }
