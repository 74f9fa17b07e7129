package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/config"
	"github.com/example/comms-ninja/internal/platform/httpserver"
	"github.com/example/comms-ninja/internal/platform/logging"
	"github.com/example/comms-ninja/internal/platform/natsconn"
	"github.com/example/comms-ninja/internal/platform/run"
	sinkconfig "github.com/example/comms-ninja/services/analytics/internal/config"
	"github.com/example/comms-ninja/services/analytics/internal/consumer"
	"github.com/example/comms-ninja/services/analytics/internal/funnel"
	"github.com/example/comms-ninja/services/analytics/internal/handler"
)

const billingStream = "BILLING"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, zap.String("service", cfg.ServiceName))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	sinkCfg := sinkconfig.Load()

	nc, err := natsconn.Connect(natsconn.Options{URL: sinkCfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		run.Exit(1)
	}
	for stream, subject := range map[string]string{analytics.StreamName: "analytics.>", billingStream: "billing.>"} {
		if err := natsconn.EnsureStream(js, stream, subject); err != nil {
			log.Error("ensure stream", zap.String("stream", stream), zap.Error(err))
			run.Exit(1)
		}
	}

	tracker := funnel.NewTracker(sinkCfg.FunnelWindow)
	dispatcher := handler.New(tracker, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Logger: log})
	r.Get("/v1/funnel", handler.Funnel(tracker))
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	components := []run.Component{
		run.HTTP(srv, log),
		func(ctx context.Context) error {
			t := time.NewTicker(time.Hour)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if n := tracker.Prune(); n > 0 {
						log.Info("funnel pruned", zap.Int("users", n))
					}
				}
			}
		},
	}
	for _, stream := range []string{analytics.StreamName, billingStream} {
		c := &consumer.Consumer{Stream: stream, Dispatcher: dispatcher, BatchSize: sinkCfg.BatchSize, MaxWait: sinkCfg.MaxWait, Log: log}
		components = append(components, func(ctx context.Context) error { return c.Run(ctx, js) })
	}

	log.Info("analytics sink started")
	code := run.New(log).WithSignals(components...)
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
