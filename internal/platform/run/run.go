package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/comms-ninja/internal/platform/httpserver"
)

const shutdownTimeout = 10 * time.Second

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// Component is a long running part of a service. It must return once ctx is done.
type Component func(ctx context.Context) error

// WithSignals runs all components until SIGINT/SIGTERM or until one of them fails,
// and returns the process exit code.
func (r *Runner) WithSignals(components ...Component) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, components...)
}

func (r *Runner) run(ctx context.Context, components ...Component) int {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		g.Go(func() error { return c(gctx) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		r.Logger.Info("shutdown signal received")
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

// HTTP adapts an httpserver.Server into a Component with graceful shutdown.
func HTTP(srv *httpserver.Server, log *zap.Logger) Component {
	return func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			Graceful(srv.Shutdown)
		}()
		return srv.Start(log)
	}
}

// Graceful calls shutdown with a bounded deadline.
func Graceful(shutdown func(context.Context) error) {
	c, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = shutdown(c)
}

func Exit(code int) {
	os.Exit(code)
}
