package trendlogger

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/sampling"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReaperStore ist die Persistenz-Sicht des Reapers
type ReaperStore interface {
	ListTrendLogs(ctx context.Context) ([]types.TrendLog, error)
	DeleteSamplesBefore(ctx context.Context, trendLogID uuid.UUID, cutoff time.Time) (int64, error)
}

// Reaper löscht periodisch onChange Samples, die älter sind als die
// Cleanup-Periode ihres Logs. Periodische Logs behalten ihre Historie.
type Reaper struct {
	store    ReaperStore
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewReaper(store ReaperStore, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	r.running = true
	r.wg.Add(1)
	go r.loop()

	r.logger.Info("Sample reaper started", zap.Duration("interval", r.interval))
	return nil
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			r.cycle(ctx, time.Now())
			cancel()
		}
	}
}

func (r *Reaper) cycle(ctx context.Context, now time.Time) {
	logs, err := r.store.ListTrendLogs(ctx)
	if err != nil {
		r.logger.Error("Failed to list trend logs", zap.Error(err))
		return
	}

	for _, log := range logs {
		policy, err := sampling.NewPolicy(log)
		if err != nil {
			continue
		}

		cutoff, ok := policy.CleanupCutoff(now)
		if !ok {
			continue
		}

		deleted, err := r.store.DeleteSamplesBefore(ctx, log.ID, cutoff)
		if err != nil {
			r.logger.Error("Sample cleanup failed",
				zap.String("trend_log_id", log.ID.String()), zap.Error(err))
			continue
		}
		if deleted > 0 {
			r.logger.Info("Old samples cleaned up",
				zap.String("trend_log_id", log.ID.String()),
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff))
		}
	}
}
