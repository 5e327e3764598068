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

// Store ist die Persistenz-Sicht des Schedulers
type Store interface {
	ListTrendLogs(ctx context.Context) ([]types.TrendLog, error)
	LatestSample(ctx context.Context, trendLogID uuid.UUID) (*types.Sample, error)
	InsertSample(ctx context.Context, sample types.Sample) error
}

// RegisterReader liest den aktuellen Wert eines Registers von einem Analyzer
type RegisterReader interface {
	ReadDescriptor(ctx context.Context, analyzerID uuid.UUID, desc types.RegisterDescriptor) (float64, error)
}

// Broadcaster pusht persistierte Samples an verbundene Clients
type Broadcaster interface {
	BroadcastSample(sample types.Sample)
}

// Scheduler treibt pro Zyklus jede aktive Trend-Log Pipeline:
// Register lesen, Policy auswerten, Sample persistieren, Sample pushen.
// Abgelaufene Logs werden aus der Auswertung genommen, nicht gelöscht.
type Scheduler struct {
	store       Store
	reader      RegisterReader
	broadcaster Broadcaster
	interval    time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	lastSeen map[uuid.UUID]*types.Sample
	expired  map[uuid.UUID]struct{}

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func NewScheduler(store Store, reader RegisterReader, broadcaster Broadcaster, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		reader:      reader,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger,
		lastSeen:    make(map[uuid.UUID]*types.Sample),
		expired:     make(map[uuid.UUID]struct{}),
		stopChan:    make(chan struct{}),
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Trend logger started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Trend logger stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.cycle(ctx, time.Now())
			cancel()
		}
	}
}

// cycle wertet alle aktiven Logs einmal aus. Die Log-Liste wird pro Zyklus
// neu geladen, damit neue und gelöschte Logs ohne Neustart greifen.
func (s *Scheduler) cycle(ctx context.Context, now time.Time) {
	logs, err := s.store.ListTrendLogs(ctx)
	if err != nil {
		s.logger.Error("Failed to list trend logs", zap.Error(err))
		return
	}

	for _, log := range logs {
		if s.isExpired(log.ID) {
			continue
		}
		s.evaluateLog(ctx, log, now)
	}
}

func (s *Scheduler) evaluateLog(ctx context.Context, log types.TrendLog, now time.Time) {
	policy, err := sampling.NewPolicy(log)
	if err != nil {
		// Sollte nie passieren, die Konfiguration wird beim Anlegen geprüft
		s.logger.Error("Trend log has invalid policy config",
			zap.String("trend_log_id", log.ID.String()), zap.Error(err))
		return
	}

	prev, err := s.lastSample(ctx, log.ID)
	if err != nil {
		s.logger.Error("Failed to load latest sample",
			zap.String("trend_log_id", log.ID.String()), zap.Error(err))
		return
	}

	value, err := s.reader.ReadDescriptor(ctx, log.AnalyzerID, log.Register)
	if err != nil {
		s.logger.Warn("Register read failed",
			zap.String("trend_log_id", log.ID.String()),
			zap.String("register", log.RegisterID),
			zap.Error(err))
		return
	}

	switch policy.Evaluate(prev, value, now) {
	case sampling.Expired:
		s.markExpired(log.ID)
		s.logger.Info("Trend log expired, no further sampling",
			zap.String("trend_log_id", log.ID.String()),
			zap.Time("end_date", log.EndDate))
	case sampling.Persist:
		sample := types.Sample{TrendLogID: log.ID, Timestamp: now, Value: value}
		if err := s.store.InsertSample(ctx, sample); err != nil {
			s.logger.Error("Failed to persist sample",
				zap.String("trend_log_id", log.ID.String()), zap.Error(err))
			return
		}
		s.rememberSample(sample)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastSample(sample)
		}
	}
}

// lastSample bedient sich aus dem Zyklus-Cache und fällt nur beim ersten
// Kontakt mit einem Log auf die Datenbank zurück
func (s *Scheduler) lastSample(ctx context.Context, trendLogID uuid.UUID) (*types.Sample, error) {
	s.mu.Lock()
	cached, ok := s.lastSeen[trendLogID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	sample, err := s.store.LatestSample(ctx, trendLogID)
	if err != nil {
		return nil, err
	}
	if sample != nil {
		s.mu.Lock()
		s.lastSeen[trendLogID] = sample
		s.mu.Unlock()
	}
	return sample, nil
}

func (s *Scheduler) rememberSample(sample types.Sample) {
	s.mu.Lock()
	s.lastSeen[sample.TrendLogID] = &sample
	s.mu.Unlock()
}

func (s *Scheduler) isExpired(trendLogID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expired[trendLogID]
	return ok
}

func (s *Scheduler) markExpired(trendLogID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired[trendLogID] = struct{}{}
}

// ForgetLog räumt den Scheduler-Zustand eines gelöschten Logs ab
func (s *Scheduler) ForgetLog(trendLogID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, trendLogID)
	delete(s.expired, trendLogID)
}
