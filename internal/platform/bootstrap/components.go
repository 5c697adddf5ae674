// Package bootstrap assembles every service binary's dependencies into
// one explicit Components value, built once in main and threaded down
// by constructor argument — no package-level singletons.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/flowgrid/platform/internal/platform/config"
	"github.com/flowgrid/platform/internal/platform/db"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/platform/redisclient"
	"github.com/flowgrid/platform/internal/platform/telemetry"
)

// Components holds every initialized dependency a service needs.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *redisclient.Client
	Telemetry *telemetry.Telemetry

	cleanupFuncs []func() error
}

// Shutdown runs registered cleanup functions in reverse order.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks the health of every component that has one.
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
