package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 2 * time.Minute
	// defaultMaxHeaderBytes leaves room for bearer tokens and Stripe signatures.
	defaultMaxHeaderBytes = 64 << 10
)

type Server struct {
	HTTP *http.Server
	name string
}

// Options configures a Server. Zero timeouts take the package defaults.
type Options struct {
	Addr         string
	ServiceName  string
	Logger       *zap.Logger
	Router       chi.Router
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func New(opts Options) *Server {
	if opts.Router == nil {
		r := chi.NewRouter()
		SetupRouter(r, RouterConfig{Logger: opts.Logger})
		opts.Router = r
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Router,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       orDefault(opts.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      orDefault(opts.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       orDefault(opts.IdleTimeout, defaultIdleTimeout),
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}
	if opts.Logger != nil {
		srv.ErrorLog = zap.NewStdLog(opts.Logger.With(zap.String("component", "http")))
	}
	return &Server{HTTP: srv, name: opts.ServiceName}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Start listens on the configured address. A graceful shutdown is not an error.
func (s *Server) Start(log *zap.Logger) error {
	ln, err := net.Listen("tcp", s.HTTP.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln, log)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener, log *zap.Logger) error {
	log.Info("http server starting", zap.String("addr", ln.Addr().String()), zap.String("service", s.name))
	if err := s.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTP.Shutdown(ctx)
}
