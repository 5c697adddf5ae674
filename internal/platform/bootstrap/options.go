package bootstrap

import (
	"github.com/flowgrid/platform/internal/platform/config"
	"github.com/flowgrid/platform/internal/platform/db"
	"github.com/flowgrid/platform/internal/platform/logger"
)

// Option configures Setup.
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	skipTelemetry bool
	customLogger  *logger.Logger
	customConfig  *config.Config
	dbInitHook    func(*db.DB) error
}

// WithoutDB skips database initialization, for binaries that never
// touch the durable run-log store (the dashboard fanout, for instance).
func WithoutDB() Option {
	return func(o *options) { o.skipDB = true }
}

// WithoutRedis skips Redis initialization.
func WithoutRedis() Option {
	return func(o *options) { o.skipRedis = true }
}

// WithoutTelemetry skips the pprof endpoint.
func WithoutTelemetry() Option {
	return func(o *options) { o.skipTelemetry = true }
}

// WithCustomLogger injects a logger instead of building one from config.
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// WithCustomConfig injects a config instead of loading from the environment.
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

// WithDBInitHook runs a hook against the pool right after it connects,
// useful for migrations in tests.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) { o.dbInitHook = hook }
}

func defaultOptions() *options {
	return &options{}
}
