package multilog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu      sync.Mutex
	samples map[uuid.UUID][]types.Sample
	deleted map[uuid.UUID]bool
	failing map[uuid.UUID]bool
	calls   map[uuid.UUID]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		samples: make(map[uuid.UUID][]types.Sample),
		deleted: make(map[uuid.UUID]bool),
		failing: make(map[uuid.UUID]bool),
		calls:   make(map[uuid.UUID]int),
	}
}

func (f *fakeFetcher) FetchSamples(_ context.Context, id uuid.UUID, limit int) ([]types.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.deleted[id] {
		return nil, storage.ErrNotFound
	}
	if f.failing[id] {
		return nil, errors.New("connection refused")
	}
	samples := f.samples[id]
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples, nil
}

func (f *fakeFetcher) markDeleted(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
}

func (f *fakeFetcher) callCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeConfigStore struct {
	mu      sync.Mutex
	saved   []types.MultiLogConfig
	deleted []uuid.UUID
	failSave error
}

func (f *fakeConfigStore) SaveMultiLogConfig(_ context.Context, cfg types.MultiLogConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	f.saved = append(f.saved, cfg)
	return nil
}

func (f *fakeConfigStore) DeleteMultiLogConfig(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConfigStore) lastSaved() *types.MultiLogConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	cfg := f.saved[len(f.saved)-1]
	return &cfg
}

func testLog() types.TrendLog {
	return types.TrendLog{
		ID:         uuid.New(),
		AnalyzerID: uuid.New(),
		RegisterID: "voltage_l1",
		Period:     types.PeriodMinute,
		Interval:   1,
	}
}

func withSamples(f *fakeFetcher, log types.TrendLog, n int) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]types.Sample, n)
	for i := range samples {
		samples[i] = types.Sample{
			TrendLogID: log.ID,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Value:      float64(i),
		}
	}
	f.mu.Lock()
	f.samples[log.ID] = samples
	f.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *fakeFetcher, *fakeConfigStore) {
	t.Helper()
	fetcher := newFakeFetcher()
	configs := &fakeConfigStore{}
	engine := NewEngine(fetcher, configs, zap.NewNop())
	t.Cleanup(engine.Close)
	return engine, fetcher, configs
}

func TestRefreshTickBuildsSeries(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	logA, logB := testLog(), testLog()
	withSamples(fetcher, logA, 5)
	withSamples(fetcher, logB, 3)

	engine.SelectLogs([]types.TrendLog{logA, logB})
	engine.RefreshTick(context.Background())

	series := engine.Series()
	require.Len(t, series, 2)
	assert.Len(t, series[0].Points, 5)
	assert.Len(t, series[1].Points, 3)
	assert.True(t, engine.TimerArmed())
}

func TestLogLimitTruncatesFetch(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 500)

	engine.SelectLogs([]types.TrendLog{log})
	require.NoError(t, engine.SetLogLimit(context.Background(), 50))
	engine.RefreshTick(context.Background())

	series := engine.Series()
	require.Len(t, series, 1)
	assert.Len(t, series[0].Points, 50)
}

func TestDeletionReconciliationIdempotence(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	logA, logB := testLog(), testLog()
	withSamples(fetcher, logA, 2)
	withSamples(fetcher, logB, 2)

	engine.SelectLogs([]types.TrendLog{logA, logB})
	engine.RefreshTick(context.Background())
	require.Len(t, engine.SelectedIDs(), 2)

	fetcher.markDeleted(logB.ID)

	engine.RefreshTick(context.Background())
	assert.Equal(t, []uuid.UUID{logA.ID}, engine.SelectedIDs())
	assert.Equal(t, 1, engine.KnownDeleted())
	callsAfterFirst := fetcher.callCount(logB.ID)

	// Zweiter Tick: keine erneute Entfernung, kein erneuter Fetch des
	// gelöschten Logs
	engine.RefreshTick(context.Background())
	assert.Equal(t, []uuid.UUID{logA.ID}, engine.SelectedIDs())
	assert.Equal(t, 1, engine.KnownDeleted())
	assert.Equal(t, callsAfterFirst, fetcher.callCount(logB.ID))
}

func TestTransientFailureTentativelyDeletes(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 2)
	fetcher.failing[log.ID] = true

	engine.SelectLogs([]types.TrendLog{log})
	engine.RefreshTick(context.Background())

	// Konservativ: auch transiente Fehler markieren als gelöscht
	assert.Empty(t, engine.SelectedIDs())
	assert.Equal(t, 1, engine.KnownDeleted())
	assert.False(t, engine.TimerArmed())

	// Monoton: auch wenn der Fetch wieder funktionieren würde, bleibt
	// die ID markiert
	fetcher.failing[log.ID] = false
	engine.SelectLogs([]types.TrendLog{log})
	assert.Empty(t, engine.SelectedIDs())
}

func TestConfigAutoPruning(t *testing.T) {
	engine, fetcher, configs := newTestEngine(t)

	logA, logB, logC := testLog(), testLog(), testLog()
	for _, log := range []types.TrendLog{logA, logB, logC} {
		withSamples(fetcher, log, 2)
	}

	cfg := types.MultiLogConfig{
		ID:          uuid.New(),
		Name:        "main-distribution",
		TrendLogIDs: []uuid.UUID{logA.ID, logB.ID, logC.ID},
		LogLimit:    100,
		RefreshRate: 30,
	}
	engine.ApplyConfig(cfg, []types.TrendLog{logA, logB, logC})

	// Zwei von drei Logs verschwinden
	fetcher.markDeleted(logA.ID)
	fetcher.markDeleted(logB.ID)
	engine.RefreshTick(context.Background())

	saved := configs.lastSaved()
	require.NotNil(t, saved)
	assert.Equal(t, []uuid.UUID{logC.ID}, saved.TrendLogIDs)

	active := engine.ActiveConfig()
	require.NotNil(t, active)
	assert.Equal(t, []uuid.UUID{logC.ID}, active.TrendLogIDs)

	// Der letzte Überlebende verschwindet: Config wird gelöscht,
	// nicht leer gespeichert
	fetcher.markDeleted(logC.ID)
	engine.RefreshTick(context.Background())

	assert.Equal(t, []uuid.UUID{cfg.ID}, configs.deleted)
	assert.Nil(t, engine.ActiveConfig())
	assert.Empty(t, engine.SelectedIDs())
	assert.Empty(t, engine.Series())
	assert.False(t, engine.TimerArmed())
}

func TestEmptySelectionInvariant(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 3)

	engine.SelectLogs([]types.TrendLog{log})
	engine.RefreshTick(context.Background())
	require.NotEmpty(t, engine.Series())

	// Leere Auswahl: Timer aus, Chart leer
	engine.SelectLogs(nil)
	assert.False(t, engine.TimerArmed())
	assert.Empty(t, engine.Series())
	assert.Empty(t, engine.SelectedIDs())

	// Gleicher Endzustand, wenn alle Logs in einem Tick gelöscht werden
	engine.SelectLogs([]types.TrendLog{log})
	fetcher.markDeleted(log.ID)
	engine.RefreshTick(context.Background())
	assert.False(t, engine.TimerArmed())
	assert.Empty(t, engine.Series())
	assert.Empty(t, engine.SelectedIDs())
}

func TestEmptyTickRetainsPreviousChart(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 3)

	engine.SelectLogs([]types.TrendLog{log})
	engine.RefreshTick(context.Background())
	require.Len(t, engine.Series(), 1)

	// Log existiert noch, liefert aber keine Daten (transienter Ausfall):
	// das alte Chart bleibt stehen
	fetcher.mu.Lock()
	fetcher.samples[log.ID] = nil
	fetcher.mu.Unlock()

	engine.RefreshTick(context.Background())
	assert.Len(t, engine.Series(), 1)
	assert.True(t, engine.TimerArmed())
}

func TestClearSelectionUnconditional(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 3)
	engine.SelectLogs([]types.TrendLog{log})
	engine.RefreshTick(context.Background())

	engine.ClearSelection()
	assert.Empty(t, engine.SelectedIDs())
	assert.Empty(t, engine.Series())
	assert.False(t, engine.TimerArmed())
}

func TestSetRefreshRateRollbackOnPersistFailure(t *testing.T) {
	engine, fetcher, configs := newTestEngine(t)

	log := testLog()
	withSamples(fetcher, log, 1)
	cfg := types.MultiLogConfig{
		ID:          uuid.New(),
		Name:        "west-wing",
		TrendLogIDs: []uuid.UUID{log.ID},
		LogLimit:    100,
		RefreshRate: 30,
	}
	engine.ApplyConfig(cfg, []types.TrendLog{log})

	configs.failSave = errors.New("database unavailable")
	err := engine.SetRefreshRate(context.Background(), 5)
	assert.Error(t, err)
	// Rollback auf den letzten bekannten Config-Wert
	assert.Equal(t, 30, engine.RefreshRate())

	// LogLimit rollt absichtlich nicht zurück
	err = engine.SetLogLimit(context.Background(), 25)
	assert.Error(t, err)
	assert.Equal(t, 25, engine.LogLimit())

	configs.failSave = nil
	require.NoError(t, engine.SetRefreshRate(context.Background(), 10))
	assert.Equal(t, 10, engine.RefreshRate())
	saved := configs.lastSaved()
	require.NotNil(t, saved)
	assert.Equal(t, 10, saved.RefreshRate)
}

func TestSetRefreshRateWithoutConfig(t *testing.T) {
	engine, _, configs := newTestEngine(t)

	require.NoError(t, engine.SetRefreshRate(context.Background(), 7))
	assert.Equal(t, 7, engine.RefreshRate())
	assert.Nil(t, configs.lastSaved())
}

func TestOverlappingTickSkipped(t *testing.T) {
	fetcher := newFakeFetcher()
	configs := &fakeConfigStore{}
	blocking := &blockingFetcher{
		fetcher: fetcher,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	engine := NewEngine(blocking, configs, zap.NewNop())
	t.Cleanup(engine.Close)

	log := testLog()
	withSamples(fetcher, log, 1)
	engine.SelectLogs([]types.TrendLog{log})

	done := make(chan struct{})
	go func() {
		engine.RefreshTick(context.Background())
		close(done)
	}()

	// Warten bis der erste Tick im Fetch hängt
	<-blocking.started

	// Überlappender Tick wird übersprungen, nicht eingereiht
	engine.RefreshTick(context.Background())
	assert.Equal(t, int32(1), blocking.calls.Load())

	close(blocking.release)
	<-done
	assert.Equal(t, int32(1), blocking.calls.Load())
}

type blockingFetcher struct {
	fetcher *fakeFetcher
	once    sync.Once
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchSamples(ctx context.Context, id uuid.UUID, limit int) ([]types.Sample, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fetcher.FetchSamples(ctx, id, limit)
}
