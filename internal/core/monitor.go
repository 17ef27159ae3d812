package core

import (
	"context"
	"log/slog"
	"time"
)

// monitorInterval is the sampling period of spec.md section 4.2's stuck-
// callback detector.
const monitorInterval = 5 * time.Second

// Monitor samples every worker's heartbeat on a fixed interval, flagging a
// service as blocked when the same worker reports the same in-flight
// message across two consecutive samples.
type Monitor struct {
	reg        *Registry
	heartbeats []*workerHeartbeat
	log        *slog.Logger
	interval   time.Duration
}

// NewMonitor builds a monitor over a scheduler's heartbeat slice.
func NewMonitor(reg *Registry, heartbeats []*workerHeartbeat, log *slog.Logger) *Monitor {
	return &Monitor{reg: reg, heartbeats: heartbeats, log: log, interval: monitorInterval}
}

// Run samples on a ticker until ctx is cancelled. Intended to be launched
// as its own goroutine by the coordinator.
func (m *Monitor) Run(ctx context.Context) {
	prevVersion := make([]uint64, len(m.heartbeats))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(prevVersion)
		}
	}
}

func (m *Monitor) sample(prevVersion []uint64) {
	for i, hb := range m.heartbeats {
		version := hb.version.Load()
		dest := hb.dest.Load()

		stuck := dest != 0 && version%2 == 1 && version == prevVersion[i]
		if dest != 0 {
			if svc := m.reg.PeekSlot(Handle(dest)); svc != nil {
				if stuck {
					if !svc.blocked.Swap(true) {
						m.log.Warn("service appears blocked", "handle", Handle(dest), "worker", i)
					}
				} else if version%2 == 0 {
					svc.blocked.Store(false)
				}
			}
		}
		prevVersion[i] = version
	}
}
