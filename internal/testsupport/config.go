package testsupport

import (
	"path/filepath"
	"testing"

	"stagequeue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithResetBatchSize overrides the reset batch size.
func WithResetBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.ResetBatchSize = size
	}
}

// WithAdminPIN overrides the operator PIN.
func WithAdminPIN(pin string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Admin.PIN = pin
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
