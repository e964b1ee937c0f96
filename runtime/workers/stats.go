package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"talent-chat/domain"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Presence is what the stats worker reads from the live registry.
type Presence interface {
	Rooms() []domain.RoomID
	Count(roomID domain.RoomID) int
}

// SizeFunc reports the on-disk size of the store, LSM tree and value log.
type SizeFunc func() (int64, int64)

type Stats struct {
	Rooms     int
	Sessions  int
	LSMBytes  int64
	VLogBytes int64
	RSSBytes  uint64
	CPU       float64
}

// StatsWorker periodically logs the load of the chat daemon.
type StatsWorker struct {
	log      *slog.Logger
	interval time.Duration
	presence Presence
	size     SizeFunc
}

func NewStatsWorker(log *slog.Logger, interval time.Duration, presence Presence, size SizeFunc) *StatsWorker {
	return &StatsWorker{log: log, interval: interval, presence: presence, size: size}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("stats of own process: %w", err)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := w.Collect(p)
			if err != nil {
				w.log.Debug("Failed to collect self stats", "error", err)
			}
			w.log.Info("Chat stats",
				"rooms", stats.Rooms,
				"sessions", stats.Sessions,
				"lsm_bytes", stats.LSMBytes,
				"vlog_bytes", stats.VLogBytes,
				"rss_bytes", stats.RSSBytes,
				"cpu_percent", stats.CPU,
			)
		}
	}
}

// Collect always fills the chat figures. Process figures are left at zero
// when the OS refuses them, and the error says why.
func (w *StatsWorker) Collect(p *process.Process) (Stats, error) {
	var stats Stats
	for _, room := range w.presence.Rooms() {
		stats.Rooms++
		stats.Sessions += w.presence.Count(room)
	}
	if w.size != nil {
		stats.LSMBytes, stats.VLogBytes = w.size()
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		return stats, err
	}
	stats.RSSBytes = memInfo.RSS
	cpu, err := p.CPUPercent()
	if err != nil {
		return stats, err
	}
	stats.CPU = cpu
	return stats, nil
}
