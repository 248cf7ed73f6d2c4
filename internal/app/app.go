// Package app wires all aiprof subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until its context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/archive"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/internal/health"
	"github.com/MrWong99/aiprof/internal/kv"
	lec "github.com/MrWong99/aiprof/internal/lecture"
	"github.com/MrWong99/aiprof/internal/locale"
	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/internal/resilience"
	"github.com/MrWong99/aiprof/internal/web"
	"github.com/MrWong99/aiprof/pkg/audio"
	"github.com/MrWong99/aiprof/pkg/provider/llm"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM     llm.Provider
	Capture audio.Device
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store          kv.Store
	hub            *notify.Hub
	archive        *archive.FileArchive
	lectures       *lec.Controller
	analyzer       *analysis.Service
	health         *health.Handler
	api            *web.Server
	server         *http.Server
	listener       net.Listener
	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a key-value store instead of creating one from config.
// The caller keeps ownership of s.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes Run serve on l instead of listening on
// cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithLogLevel lets config reloads change the level of the handler behind
// lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Key-value store ───────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Notifications ─────────────────────────────────────────────────
	a.hub = notify.NewHub(notify.WithDropHook(func() {
		a.metrics.NotificationsDropped.Add(context.Background(), 1)
	}))

	// ── 3. Archive ───────────────────────────────────────────────────────
	if path := cfg.Archive.Path; path != "" {
		a.archive = archive.New(path)
		slog.Info("session archive enabled", "path", path)
	}

	// ── 4. Lecture controller ────────────────────────────────────────────
	a.initLectures()

	// ── 5. Content analysis ──────────────────────────────────────────────
	a.initAnalysis()

	// ── 6. Health + HTTP API ─────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured key-value backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	sc := a.cfg.Store
	var opts []kv.Option
	switch sc.Driver {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		opts = append(opts, kv.WithRedisClient(client), kv.WithRedisTTL(sc.RedisTTL))
	case config.StorePostgres:
		opts = append(opts, kv.WithPostgresDSN(sc.PostgresDSN))
	case config.StoreSQLite:
		opts = append(opts, kv.WithSQLitePath(sc.SQLitePath))
	}

	store, err := kv.NewStore(ctx, kv.Driver(sc.Driver), opts...)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	driver := sc.Driver
	if driver == "" {
		driver = config.StoreMemory
	}
	slog.Info("store opened", "driver", driver)
	return nil
}

// initLectures creates the lecture controller. Notifications fan out to the
// hub and the log; finished sessions go to the archive when enabled.
func (a *App) initLectures() {
	var consumer lec.Consumer
	if a.archive != nil {
		consumer = a.archive.Consume
	}

	a.lectures = lec.NewController(lec.ControllerConfig{
		Device:         a.providers.Capture,
		Lecture:        a.cfg.Lecture,
		Store:          a.store,
		Notifier:       notify.Multi{a.hub, notify.LogNotifier{}},
		Consumer:       consumer,
		ValidateConfig: locale.ValidateConfig,
		Metrics:        a.metrics,
	})
	if a.providers.Capture == nil {
		slog.Warn("no capture device configured, lectures cannot be recorded")
	}
}

// initAnalysis creates the analysis service when an LLM is configured.
func (a *App) initAnalysis() {
	if a.providers.LLM == nil {
		slog.Warn("no LLM configured, content analysis is disabled")
		return
	}

	ac := a.cfg.Analysis.WithDefaults()
	name := a.cfg.Providers.LLM.Name
	a.analyzer = analysis.New(a.providers.LLM, analysis.Config{
		ProviderName: name,
		Timeout:      ac.Timeout,
		Temperature:  ac.Temperature,
		Breaker: resilience.CircuitBreakerConfig{
			Name:         "analysis/" + name,
			MaxFailures:  ac.MaxFailures,
			ResetTimeout: ac.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
			},
		},
		Metrics: a.metrics,
	})
}

// initHTTP builds the readiness checks, the API and the http.Server.
func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.StoreChecker(a.store),
		health.ProviderConfigured("capture", a.cfg.Providers.Capture.Name, false),
		health.ProviderConfigured("llm", a.cfg.Providers.LLM.Name, true),
	}
	if a.analyzer != nil {
		checkers = append(checkers, health.BreakerChecker(a.analyzer.Breaker()))
	}
	a.health = health.New(checkers...)

	wc := web.Config{
		Lectures:       a.lectures,
		Store:          a.store,
		Events:         a.hub,
		Health:         a.health,
		MetricsHandler: a.metricsHandler,
		Metrics:        a.metrics,
	}
	// A nil *analysis.Service must not become a non-nil interface.
	if a.analyzer != nil {
		wc.Analyzer = a.analyzer
	}
	a.api = web.New(wc)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.api,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Lectures returns the lecture controller.
func (a *App) Lectures() *lec.Controller { return a.lectures }

// Analyzer returns the analysis service, or nil when no LLM is configured.
func (a *App) Analyzer() *analysis.Service { return a.analyzer }

// Hub returns the notification hub.
func (a *App) Hub() *notify.Hub { return a.hub }

// Store returns the key-value store.
func (a *App) Store() kv.Store { return a.store }

// Handler returns the HTTP API including health and metrics routes.
func (a *App) Handler() http.Handler { return a.api }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable settings of d and warns about the
// rest. It is meant to be the callback of a [config.Watcher].
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.LectureChanged {
		a.lectures.Reconfigure(d.NewLecture)
		slog.Info("lecture settings reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog equivalent. Unknown levels
// map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run returns context.Canceled (or the underlying
// cause). Call Shutdown afterwards to release everything.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: the HTTP server stops
// accepting requests, the lecture controller abandons whatever is in
// flight, the hub closes its subscribers and the store is closed. If ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		if err := a.lectures.Close(); err != nil {
			slog.Warn("lecture controller close error", "err", err)
		}
		a.hub.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
