package config

// The helpers below classify what changed between two configs so the watcher
// callback can apply hot reloads where possible and log a restart-required
// notice otherwise.

// LogLevelChanged reports whether the log level differs between two configs.
// Log level changes apply live via slog.LevelVar.
func LogLevelChanged(old, new *Config) bool {
	return old.Server.LogLevel != new.Server.LogLevel
}

// InterviewChanged reports whether the hot-reloadable interview settings
// differ. Context window, system prompt behavior, temperature, and playback
// can all change without a restart.
func InterviewChanged(old, new *Config) bool {
	return old.Interview.ContextWindow != new.Interview.ContextWindow ||
		old.Interview.UseSystemPrompt != new.Interview.UseSystemPrompt ||
		old.Interview.SystemPrompt != new.Interview.SystemPrompt ||
		old.Interview.Temperature != new.Interview.Temperature ||
		old.Interview.PlayReplies != new.Interview.PlayReplies
}

// RestartRequired reports whether the changes between two configs include
// settings that cannot be applied to a running server: the listen address,
// TLS material, provider wiring, capture setup, or archive connection.
func RestartRequired(old, new *Config) bool {
	if old.Server.ListenAddr != new.Server.ListenAddr {
		return true
	}
	if tlsChanged(old.Server.TLS, new.Server.TLS) {
		return true
	}
	if providersChanged(old.Providers, new.Providers) {
		return true
	}
	if old.Capture.SampleRate != new.Capture.SampleRate ||
		old.Capture.Channels != new.Capture.Channels ||
		!equalStrings(old.Capture.Command, new.Capture.Command) {
		return true
	}
	if old.Archive.PostgresDSN != new.Archive.PostgresDSN {
		return true
	}
	if old.Interview.StoragePath != new.Interview.StoragePath ||
		old.Interview.MediaDir != new.Interview.MediaDir {
		return true
	}
	return false
}

func tlsChanged(old, new *TLSConfig) bool {
	if (old == nil) != (new == nil) {
		return true
	}
	if old == nil {
		return false
	}
	return old.CertFile != new.CertFile || old.KeyFile != new.KeyFile
}

func providersChanged(old, new ProvidersConfig) bool {
	return !entryEqual(old.LLM, new.LLM) ||
		!entryEqual(old.STT, new.STT) ||
		!entryEqual(old.TTS, new.TTS) ||
		!entriesEqual(old.LLMFallbacks, new.LLMFallbacks) ||
		!entriesEqual(old.STTFallbacks, new.STTFallbacks) ||
		!entriesEqual(old.TTSFallbacks, new.TTSFallbacks)
}

// entryEqual compares the standard fields only. Options maps are compared by
// length, which is enough for restart detection in practice.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		len(a.Options) == len(b.Options)
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
