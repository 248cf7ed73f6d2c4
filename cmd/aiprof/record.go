package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MrWong99/aiprof/internal/app"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/internal/tui"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// eventBuffer is the notification backlog of the terminal monitor.
const eventBuffer = 64

func recordCmd(configPath *string) *cobra.Command {
	var (
		in           lecture.Config
		noMonitoring bool
		logFile      string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one lecture in an interactive terminal monitor",
		Long: `Record one lecture from the configured microphone.

The monitor shows the input level and alerts while recording and the
correction report once it is ready. Press space to stop or restart, a to
toggle accessible text and q to quit.

Examples:
  aiprof record --title "Intro to Physics" --subject Physics
  aiprof record --language pt --dialect BR --log-file aiprof.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.RealTimeMonitoring = !noMonitoring
			return runRecord(*configPath, in, logFile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "lecture title")
	f.StringVar(&in.Subject, "subject", "", "lecture subject")
	f.StringVar(&in.Instructor, "instructor", "", "instructor name")
	f.StringVar(&in.Language, "language", "", "lecture language code, e.g. en or pt")
	f.StringVar(&in.Dialect, "dialect", "", "regional dialect of the language, e.g. BR")
	f.BoolVar(&noMonitoring, "no-monitoring", false, "disable real-time alerts")
	f.StringVar(&logFile, "log-file", "", "write logs to this file instead of discarding them")
	return cmd
}

func runRecord(configPath string, in lecture.Config, logFile string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Lecture.Monitoring() {
		in.RealTimeMonitoring = false
	}

	// The terminal belongs to the monitor; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if logFile != "" {
		fh, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer fh.Close()
		logOut = fh
	}
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(logOut, level))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	events, unsubscribe := application.Hub().Subscribe(eventBuffer)
	defer unsubscribe()

	m := tui.New(application.Lectures(), events, in)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	// Let a report that is still being generated finish before shutdown
	// abandons it.
	if application.Lectures().Recording() {
		if _, _, err := application.Lectures().Stop(ctx); err != nil {
			slog.Warn("stop on exit failed", "err", err)
		}
	}
	wctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := application.Lectures().Wait(wctx); err != nil {
		slog.Warn("report still pending on exit", "err", err)
	}

	if s, ok := application.Lectures().Current(); ok {
		fmt.Printf("Session %s finished with status %s (%d alerts)\n", s.ID, s.Status, len(s.Alerts))
	}
	return nil
}
