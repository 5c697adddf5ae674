// Command dashboard-fanout serves the live execution timeline: it
// subscribes to the Redis channels cmd/runtime-server publishes
// TimelineEvents on and rebroadcasts them to connected dashboard
// websocket clients.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"github.com/flowgrid/platform/internal/observability/fanout"
	"github.com/flowgrid/platform/internal/platform/bootstrap"
	"github.com/flowgrid/platform/internal/platform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components := bootstrap.MustSetup(ctx, "dashboard-fanout", bootstrap.WithoutDB())
	defer components.Shutdown(ctx)

	cfg := components.Config
	log := components.Logger

	hub := fanout.NewHub(log)
	go hub.Run()

	subscriber := fanout.NewSubscriber(components.Redis.Client, hub, log)
	go func() {
		if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
			log.Error("fanout subscriber stopped", "error", err)
		}
	}()

	wsServer := fanout.NewServer(hub, log)

	e := echo.New()
	e.HideBanner = true
	wsServer.Register(e)

	srv := server.New("dashboard-fanout", cfg.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("dashboard-fanout exited with error", "error", err)
		os.Exit(1)
	}
}
