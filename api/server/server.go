package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/malbeclabs/solarfund/api/handlers"
	"github.com/malbeclabs/solarfund/api/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	log        *slog.Logger
	cfg        Config
	httpSrv    *http.Server
	metricsSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	s := &Server{log: cfg.Logger, cfg: cfg}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
	}
	return s, nil
}

// Router builds the full middleware chain around the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.cfg.Sentry {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(handlers.CORS(s.cfg.Env, s.cfg.AllowedOrigins...))
	s.cfg.API.Mount(r)
	return r
}

// Run serves until ctx is canceled or a listener fails, then shuts both
// servers down.
func (s *Server) Run(ctx context.Context) error {
	apiLn, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	var metricsLn net.Listener
	if s.metricsSrv != nil {
		metricsLn, err = net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			apiLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.MetricsAddr, err)
		}
	}
	return s.Serve(ctx, apiLn, metricsLn)
}

// Serve is Run on already bound listeners. metricsLn may be nil.
func (s *Server) Serve(ctx context.Context, apiLn, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("server: http listening", "address", apiLn.Addr().String(), "env", s.cfg.Env)
		return serve(s.httpSrv, apiLn)
	})
	if s.metricsSrv != nil && metricsLn != nil {
		g.Go(func() error {
			s.log.Info("server: prometheus metrics server listening", "address", metricsLn.Addr().String())
			return serve(s.metricsSrv, metricsLn)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("server: stopping", "reason", context.Cause(gctx))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
		}
		if s.metricsSrv != nil {
			if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown metrics server: %w", err))
			}
		}
		s.log.Info("server: http server shutdown complete")
		return errors.Join(errs...)
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
