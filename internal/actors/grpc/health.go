package grpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to a Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthServiceArgs are the mandatory args to instantiate the HealthService.
type HealthServiceArgs struct {
	// Dependencies are pinged by name on every check.
	Dependencies map[string]Pinger
}

// HealthServiceOptArgs are the optional arguments for building a HealthService
type HealthServiceOptArgs = func(*HealthService)

// WithTimeout bounds every dependency ping.
func WithTimeout(timeout time.Duration) HealthServiceOptArgs {
	return func(h *HealthService) {
		h.timeout = timeout
	}
}

// NewHealthService creates a new HealthService. It starts as NOT_SERVING until the first check.
func NewHealthService(args HealthServiceArgs, optArgs ...HealthServiceOptArgs) *HealthService {
	h := &HealthService{
		server:       health.NewServer(),
		dependencies: args.Dependencies,
		timeout:      2 * time.Second,
	}
	for _, opt := range optArgs {
		opt(h)
	}
	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// HealthService implements grpc.health.v1.Health on top of dependency pings.
type HealthService struct {
	server       *health.Server
	dependencies map[string]Pinger
	timeout      time.Duration
}

// Register adds the health service to s.
func (h *HealthService) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.server)
}

// Healthz pings every dependency and updates the serving status accordingly.
func (h *HealthService) Healthz(ctx context.Context) error {
	names := make([]string, 0, len(h.dependencies))
	for name := range h.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.dependencies[name].Ping(pingCtx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	err := errors.Join(errs...)

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	return err
}

// Run checks the dependencies every interval until ctx is done, then reports NOT_SERVING.
func (h *HealthService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := h.Healthz(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
		}
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
