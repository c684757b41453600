package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

type connectionCounter interface {
	Len() int
}

// StatsWorker logs the process footprint next to the number of live connections.
type StatsWorker struct {
	connections connectionCounter
	interval    time.Duration
	log         *slog.Logger
}

func NewStatsWorker(connections connectionCounter, interval time.Duration, log *slog.Logger) *StatsWorker {
	return &StatsWorker{connections: connections, interval: interval, log: log}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Relay stats",
				"connections", w.connections.Len(),
				"goroutines", runtime.NumGoroutine(),
				"rss_bytes", rss,
				"cpu_percent", cpu)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
