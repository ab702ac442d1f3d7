package health

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported next to the overall "" status.
const ServiceName = "coffee.store"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor pings the store periodically and mirrors the result into a gRPC
// health server and an in-process flag read by the HTTP probe.
type Monitor struct {
	pinger   Pinger
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
	healthy  atomic.Bool
}

func NewMonitor(pinger Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Monitor{
		pinger:   pinger,
		server:   health.NewServer(),
		interval: interval,
		timeout:  2 * time.Second,
	}
	m.set(false)
	return m
}

// Check pings once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	if err != nil && m.healthy.Load() {
		slog.WarnContext(ctx, "database ping failed", "error", err)
	}
	m.set(err == nil)
	return err == nil
}

func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			m.server.Shutdown()
			return
		}
	}
}

// Register exposes grpc.health.v1.Health and reflection on s.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
	reflection.Register(s)
}

func (m *Monitor) set(ok bool) {
	m.healthy.Store(ok)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
}
