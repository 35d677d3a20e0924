package testsupport

import (
	"path/filepath"
	"testing"

	"flowops/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Notifications.EventLogPath = filepath.Join(base, "data", "events.jsonl")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithDevelopers registers static developer entries as id/email pairs.
func WithDevelopers(pairs ...string) ConfigOption {
	return func(cfg *config.Config) {
		for i := 0; i+1 < len(pairs); i += 2 {
			cfg.Directory.Developers = append(cfg.Directory.Developers, config.DeveloperEntry{ID: pairs[i], Email: pairs[i+1]})
		}
	}
}

// WithAPIToken sets the daemon API bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
