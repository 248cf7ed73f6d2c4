package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LectureChanged is true if any lecture tuning value changed. New
	// values apply to sessions started after the reload.
	LectureChanged bool
	NewLecture     LectureConfig

	// RestartRequired lists settings that changed but only take effect
	// after a restart (listen address, providers, store).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !lectureEqual(old.Lecture, new.Lecture) {
		d.LectureChanged = true
		d.NewLecture = new.Lecture
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providerEqual(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !providerEqual(old.Providers.Capture, new.Providers.Capture) {
		d.RestartRequired = append(d.RestartRequired, "providers.capture")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

func lectureEqual(a, b LectureConfig) bool {
	if a.AlertInterval != b.AlertInterval ||
		a.AlertProbability != b.AlertProbability ||
		a.ReportDelay != b.ReportDelay ||
		a.ReportTimeout != b.ReportTimeout {
		return false
	}
	return a.Monitoring() == b.Monitoring()
}

// providerEqual ignores Options, which may hold non-comparable values.
func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

// Changed reports whether d carries anything to apply or to warn about.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LectureChanged || len(d.RestartRequired) > 0
}
