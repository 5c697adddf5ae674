// Command runtime-server is the control plane binary: it accepts trigger
// deliveries (webhook and polling), registers compiled workflow graphs
// and trigger rows, runs executions through the runtime engine, and
// serves the run-log query/DLQ-replay read path.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/platform/internal/ingress"
	"github.com/flowgrid/platform/internal/llmshell"
	"github.com/flowgrid/platform/internal/observability"
	"github.com/flowgrid/platform/internal/observability/fanout"
	"github.com/flowgrid/platform/internal/platform/bootstrap"
	"github.com/flowgrid/platform/internal/platform/db"
	"github.com/flowgrid/platform/internal/platform/ratelimit"
	"github.com/flowgrid/platform/internal/platform/server"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/retry"
	"github.com/flowgrid/platform/internal/runtime"
	"github.com/flowgrid/platform/internal/triggers"
	"github.com/flowgrid/platform/internal/workflow"
)

func main() {
	ctx := context.Background()

	components := bootstrap.MustSetup(ctx, "runtime-server",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			if err := observability.EnsureSchema(ctx, database); err != nil {
				return err
			}
			return workflow.EnsureSchema(ctx, database)
		}),
	)
	defer components.Shutdown(ctx)

	cfg := components.Config
	log := components.Logger

	connectorsDir := os.Getenv("CONNECTOR_DEFINITIONS_DIR")
	if connectorsDir == "" {
		connectorsDir = "connectors"
	}
	reg := registry.New(connectorsDir, log)
	if n, err := reg.Load(); err != nil {
		log.Warn("connector registry load failed", "dir", connectorsDir, "error", err)
	} else {
		log.Info("connector registry loaded", "count", n)
	}

	rdb := components.Redis.Client

	cache := llmshell.NewCache(rdb)
	budget := llmshell.NewBudgetGate(rdb, cfg.LLM.BudgetDailyUSD)
	validator := llmshell.NewSchemaValidator()
	shell := llmshell.NewShell(stubProvider{}, cache, budget, validator, log,
		time.Duration(cfg.LLM.CacheDefaultTTLSec)*time.Second, estimateLLMCost)

	retryMgr := retry.New(rdb, log)
	idempotency := runtime.NewIdempotencyStore(rdb, 24*time.Hour)

	obsStore := observability.New(components.DB, log)
	recorder := observability.NewRecorder(obsStore, log)
	runtimeStore := observability.NewRuntimeStore(obsStore, recorder)
	publisher := fanout.NewPublisher(rdb, log)

	wfStore := workflow.New(components.DB)
	trigReg := triggers.New()

	runner := runtime.NewRunner(
		reg, newHTTPInvoker(reg, stubInvoker{}, log), shell, retryMgr, idempotency, stubCredentials{},
		runtimeStore, publisher, log,
		cfg.Runtime.MaxParallelNodesPerExecution,
		time.Duration(cfg.Runtime.DefaultNodeTimeoutMs)*time.Millisecond,
	)

	launcher := &executionLauncher{runner: runner, wfStore: wfStore, log: log}

	dedupe := ingress.NewDedupe(rdb, cfg.Webhook.DedupeWindow)
	sink := &triggerSink{launcher: launcher, trigReg: trigReg, log: log}
	webhookIntake := ingress.NewWebhookIntake(trigReg, dedupe, sink, log, cfg.Webhook.SignatureTimestampToleranceSec)
	scheduler := ingress.NewScheduler(stubPoller{}, dedupe, sink, log, time.Duration(cfg.Polling.MinIntervalSec)*time.Second)

	go scheduler.Run(ctx)

	api := &controlAPI{
		reg:       reg,
		wfStore:   wfStore,
		trigReg:   trigReg,
		obsStore:  obsStore,
		recorder:  recorder,
		retryMgr:  retryMgr,
		runner:    runner,
		launcher:  launcher,
		scheduler: scheduler,
		limiter:   ratelimit.New(rdb, log),
		log:       log,
	}

	e := echo.New()
	e.HideBanner = true
	webhookIntake.Register(e)
	api.register(e)

	srv := server.New("runtime-server", cfg.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("runtime-server exited with error", "error", err)
		os.Exit(1)
	}
}

// estimateLLMCost is a rough per-call cost floor used by the budget gate
// before the upstream provider reports actual usage.
func estimateLLMCost(req llmshell.Request) float64 {
	return 0.001
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
