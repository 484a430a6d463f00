// Package server wires configuration, stores, admission, and sessions
// into an HTTP server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/txn2/gatekit/pkg/admission"
	"github.com/txn2/gatekit/pkg/config"
	"github.com/txn2/gatekit/pkg/health"
	"github.com/txn2/gatekit/pkg/metrics"
	"github.com/txn2/gatekit/pkg/session"
	"github.com/txn2/gatekit/pkg/store"
)

// Version is set at build time.
var Version = "dev"

// Server is the assembled gatekit service.
type Server struct {
	cfg      *config.Config
	http     *http.Server
	local    *store.Local
	selector *store.Selector
	checker  *health.Checker
	rdb      *redis.Client
}

// New builds the server from configuration. The shared-store probe runs
// here; a failed probe leaves the process in local-only mode but is not
// an error.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var rec metrics.Recorder = metrics.Noop{}
	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		rec = metrics.NewPrometheus(reg)
	}

	local := store.NewLocal()
	local.StartJanitor(cfg.Session.CleanupInterval())

	var shared store.Store
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.Timeout(),
			ReadTimeout:  cfg.Redis.Timeout(),
			WriteTimeout: cfg.Redis.Timeout(),
		})
		shared = store.NewRedis(rdb)
	}

	selector := store.NewSelector(ctx, shared, local,
		store.WithTimeout(cfg.Redis.Timeout()),
		store.WithFallbackRecorder(rec),
	)

	rules := admission.NewRuleTable(cfg.RateLimit.DefaultLimit, routeRules(cfg))
	controller := admission.NewController(selector, rules, cfg.RateLimit.Window(),
		admission.WithRecorder(rec))
	sessions := session.NewManager(selector, cfg.Session.Timeout(),
		session.WithRecorder(rec))

	checker := health.NewChecker(func() string { return selector.Mode().String() })

	r := chi.NewRouter()
	r.Get("/healthz", checker.LivenessHandler())
	r.Get("/readyz", checker.ReadinessHandler())
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(controller.Middleware)
		session.NewHandler(sessions).Register(r)
	})

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      r,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		},
		local:    local,
		selector: selector,
		checker:  checker,
		rdb:      rdb,
	}, nil
}

// routeRules maps configured route quotas, falling back to the standard
// tiers derived from the default limit.
func routeRules(cfg *config.Config) []admission.Rule {
	if len(cfg.RateLimit.Routes) == 0 {
		return admission.DefaultRules(cfg.RateLimit.DefaultLimit)
	}
	rules := make([]admission.Rule, 0, len(cfg.RateLimit.Routes))
	for _, route := range cfg.RateLimit.Routes {
		rules = append(rules, admission.Rule{Prefix: route.Prefix, Limit: route.Limit})
	}
	return rules
}

// Handler returns the HTTP handler. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Checker returns the health checker.
func (s *Server) Checker() *health.Checker {
	return s.checker
}

// Run serves until ctx is canceled, then drains and shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "address", s.cfg.Server.Address, "version", Version)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.checker.SetReady()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.checker.SetDraining()
	slog.Info("server: draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)
	s.close()
	return err
}

func (s *Server) close() {
	_ = s.local.Close()
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}
