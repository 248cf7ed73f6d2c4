package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"capture": {"ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("capture", cfg.Providers.Capture.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; content analysis will not be available")
	}

	// Lecture
	lec := cfg.Lecture
	if lec.AlertInterval < 0 {
		errs = append(errs, fmt.Errorf("lecture.alert_interval %s must not be negative", lec.AlertInterval))
	}
	if lec.AlertProbability < 0 || lec.AlertProbability > 1 {
		errs = append(errs, fmt.Errorf("lecture.alert_probability %.2f is out of range [0, 1]", lec.AlertProbability))
	}
	if lec.ReportTimeout < 0 {
		errs = append(errs, fmt.Errorf("lecture.report_timeout %s must not be negative", lec.ReportTimeout))
	}
	if lec.ReportDelay > 0 && lec.ReportTimeout > 0 && lec.ReportDelay >= lec.ReportTimeout {
		slog.Warn("lecture.report_delay is not shorter than lecture.report_timeout; every report will time out",
			"report_delay", lec.ReportDelay,
			"report_timeout", lec.ReportTimeout,
		)
	}

	// Store
	st := cfg.Store
	if st.Driver != "" && !st.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, redis, postgres, sqlite", st.Driver))
	}
	switch st.Driver {
	case StoreRedis:
		if st.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("store.redis_addr is required when driver is redis"))
		}
		if st.RedisTTL < 0 {
			errs = append(errs, fmt.Errorf("store.redis_ttl %s must not be negative", st.RedisTTL))
		}
	case StorePostgres:
		if st.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("store.postgres_dsn is required when driver is postgres"))
		}
	case StoreSQLite:
		if st.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("store.sqlite_path is required when driver is sqlite"))
		}
	case "", StoreMemory:
		if st.RedisAddr != "" || st.PostgresDSN != "" || st.SQLitePath != "" {
			slog.Warn("store connection settings are ignored by the memory driver", "driver", st.Driver)
		}
	}

	// Analysis
	if cfg.Analysis.Timeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.timeout %s must not be negative", cfg.Analysis.Timeout))
	}
	if cfg.Analysis.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_failures %d must not be negative", cfg.Analysis.MaxFailures))
	}
	if cfg.Analysis.Temperature < 0 || cfg.Analysis.Temperature > 2 {
		errs = append(errs, fmt.Errorf("analysis.temperature %.2f is out of range [0, 2]", cfg.Analysis.Temperature))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
