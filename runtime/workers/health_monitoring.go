package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const pingTimeout = 2 * time.Second

// HealthCheck pings one backing service.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthMonitoringWorker samples the process and pings every backing service on a ticker.
// The outcome feeds the monitoring manager and the reporter (gRPC health status).
type HealthMonitoringWorker struct {
	log            *slog.Logger
	monitor        *observability.MonitoringManager
	checks         []HealthCheck
	report         func(healthy bool)
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	monitor *observability.MonitoringManager,
	metricInterval time.Duration,
	report func(healthy bool),
	checks ...HealthCheck,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		monitor:        monitor,
		checks:         checks,
		report:         report,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Debug("Error while retrieving process", "pid", os.Getpid(), "err", err)
	}

	w.sample(ctx, proc)
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample(ctx, proc)
		}
	}
}

func (w *HealthMonitoringWorker) sample(ctx context.Context, proc *process.Process) {
	healthy := true
	for _, check := range w.checks {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := check.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			w.log.Warn("Health check failed", "service", check.Name, "error", err)
		}
	}

	var cpu float64
	var memMb uint64
	if proc != nil {
		if c, err := proc.CPUPercent(); err == nil {
			cpu = c
		} else {
			w.log.Debug("Error while finding process cpu usage", "err", err)
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			memMb = mem.RSS / 1024 / 1024
		} else {
			w.log.Debug("Error while finding process ram usage", "err", err)
		}
	}

	w.monitor.UpdateProcess(cpu, memMb, healthy)
	if w.report != nil {
		w.report(healthy)
	}
}
