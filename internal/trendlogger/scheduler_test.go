package trendlogger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu       sync.Mutex
	logs     []types.TrendLog
	samples  map[uuid.UUID][]types.Sample
	latest   map[uuid.UUID]*types.Sample
	reaped   map[uuid.UUID]time.Time
	listErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		samples: make(map[uuid.UUID][]types.Sample),
		latest:  make(map[uuid.UUID]*types.Sample),
		reaped:  make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeStore) ListTrendLogs(context.Context) ([]types.TrendLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, f.listErr
}

func (f *fakeStore) LatestSample(_ context.Context, id uuid.UUID) (*types.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[id], nil
}

func (f *fakeStore) InsertSample(_ context.Context, sample types.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[sample.TrendLogID] = append(f.samples[sample.TrendLogID], sample)
	return nil
}

func (f *fakeStore) DeleteSamplesBefore(_ context.Context, id uuid.UUID, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reaped[id] = cutoff
	return 3, nil
}

func (f *fakeStore) sampleCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples[id])
}

type fakeReader struct {
	mu     sync.Mutex
	values map[uuid.UUID]float64
	err    error
}

func (f *fakeReader) ReadDescriptor(_ context.Context, analyzerID uuid.UUID, _ types.RegisterDescriptor) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.values[analyzerID], nil
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	samples []types.Sample
}

func (f *fakeBroadcaster) BroadcastSample(sample types.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
}

func periodicLog(analyzerID uuid.UUID) types.TrendLog {
	return types.TrendLog{
		ID:         uuid.New(),
		AnalyzerID: analyzerID,
		RegisterID: "active_power",
		Register: types.RegisterDescriptor{
			Address: 2, DataType: types.DataTypeFloat32, Scale: 1.0,
		},
		Period:   types.PeriodMinute,
		Interval: 5,
	}
}

func TestSchedulerPersistsAndBroadcastsFirstSample(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	log := periodicLog(analyzerID)
	store.logs = []types.TrendLog{log}

	reader := &fakeReader{values: map[uuid.UUID]float64{analyzerID: 42.5}}
	broadcaster := &fakeBroadcaster{}
	scheduler := NewScheduler(store, reader, broadcaster, time.Second, zap.NewNop())

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	scheduler.cycle(context.Background(), now)

	assert.Equal(t, 1, store.sampleCount(log.ID))
	require.Len(t, broadcaster.samples, 1)
	assert.Equal(t, 42.5, broadcaster.samples[0].Value)
	assert.Equal(t, log.ID, broadcaster.samples[0].TrendLogID)
}

func TestSchedulerRespectsFixedDelay(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	log := periodicLog(analyzerID)
	store.logs = []types.TrendLog{log}

	reader := &fakeReader{values: map[uuid.UUID]float64{analyzerID: 10}}
	scheduler := NewScheduler(store, reader, nil, time.Second, zap.NewNop())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	scheduler.cycle(context.Background(), base)
	require.Equal(t, 1, store.sampleCount(log.ID))

	// Innerhalb des 5-Minuten Intervalls: kein zweites Sample
	scheduler.cycle(context.Background(), base.Add(3*time.Minute))
	assert.Equal(t, 1, store.sampleCount(log.ID))

	scheduler.cycle(context.Background(), base.Add(5*time.Minute))
	assert.Equal(t, 2, store.sampleCount(log.ID))
}

func TestSchedulerSeedsPrevFromDatabase(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	log := periodicLog(analyzerID)
	store.logs = []types.TrendLog{log}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.latest[log.ID] = &types.Sample{TrendLogID: log.ID, Timestamp: base, Value: 10}

	reader := &fakeReader{values: map[uuid.UUID]float64{analyzerID: 11}}
	scheduler := NewScheduler(store, reader, nil, time.Second, zap.NewNop())

	// Das persistierte Sample von 12:00 zählt als Intervallanfang
	scheduler.cycle(context.Background(), base.Add(time.Minute))
	assert.Equal(t, 0, store.sampleCount(log.ID))

	scheduler.cycle(context.Background(), base.Add(6*time.Minute))
	assert.Equal(t, 1, store.sampleCount(log.ID))
}

func TestSchedulerStopsExpiredLogs(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	log := periodicLog(analyzerID)
	log.EndDate = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.logs = []types.TrendLog{log}

	reader := &fakeReader{values: map[uuid.UUID]float64{analyzerID: 10}}
	scheduler := NewScheduler(store, reader, nil, time.Second, zap.NewNop())

	after := log.EndDate.Add(time.Hour)
	scheduler.cycle(context.Background(), after)
	assert.Equal(t, 0, store.sampleCount(log.ID))
	assert.True(t, scheduler.isExpired(log.ID))

	// Folgezyklen lesen das Register gar nicht mehr
	reader.mu.Lock()
	reader.err = errors.New("should not be called")
	reader.mu.Unlock()
	scheduler.cycle(context.Background(), after.Add(time.Minute))
	assert.Equal(t, 0, store.sampleCount(log.ID))
}

func TestSchedulerReadFailureSkipsLog(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	log := periodicLog(analyzerID)
	store.logs = []types.TrendLog{log}

	reader := &fakeReader{err: errors.New("connection refused")}
	scheduler := NewScheduler(store, reader, nil, time.Second, zap.NewNop())

	scheduler.cycle(context.Background(), time.Now())
	assert.Equal(t, 0, store.sampleCount(log.ID))

	// Nach Wiederkehr der Verbindung geht es normal weiter
	reader.mu.Lock()
	reader.err = nil
	reader.values = map[uuid.UUID]float64{analyzerID: 5}
	reader.mu.Unlock()
	scheduler.cycle(context.Background(), time.Now())
	assert.Equal(t, 1, store.sampleCount(log.ID))
}

func TestSchedulerOnChangeThreshold(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()
	threshold := 5.0
	cleanup := 6
	log := types.TrendLog{
		ID:         uuid.New(),
		AnalyzerID: analyzerID,
		RegisterID: "voltage_l1",
		Register: types.RegisterDescriptor{
			Address: 19000, DataType: types.DataTypeFloat32, Scale: 1.0,
		},
		Period:              types.PeriodOnChange,
		PercentageThreshold: &threshold,
		CleanupPeriod:       &cleanup,
	}
	store.logs = []types.TrendLog{log}

	reader := &fakeReader{values: map[uuid.UUID]float64{analyzerID: 100}}
	scheduler := NewScheduler(store, reader, nil, time.Second, zap.NewNop())

	scheduler.cycle(context.Background(), time.Now())
	require.Equal(t, 1, store.sampleCount(log.ID))

	// 3% Änderung: unter dem Schwellwert
	reader.mu.Lock()
	reader.values[analyzerID] = 103
	reader.mu.Unlock()
	scheduler.cycle(context.Background(), time.Now())
	assert.Equal(t, 1, store.sampleCount(log.ID))

	// 5% Änderung: persistiert
	reader.mu.Lock()
	reader.values[analyzerID] = 105
	reader.mu.Unlock()
	scheduler.cycle(context.Background(), time.Now())
	assert.Equal(t, 2, store.sampleCount(log.ID))
}

func TestReaperCleansOnlyOnChangeLogs(t *testing.T) {
	store := newFakeStore()
	analyzerID := uuid.New()

	cleanup := 6
	threshold := 1.0
	onChange := types.TrendLog{
		ID:                  uuid.New(),
		AnalyzerID:          analyzerID,
		RegisterID:          "voltage_l1",
		Period:              types.PeriodOnChange,
		PercentageThreshold: &threshold,
		CleanupPeriod:       &cleanup,
	}
	periodic := periodicLog(analyzerID)
	store.logs = []types.TrendLog{onChange, periodic}

	reaper := NewReaper(store, time.Hour, zap.NewNop())

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	reaper.cycle(context.Background(), now)

	cutoff, ok := store.reaped[onChange.ID]
	require.True(t, ok)
	assert.Equal(t, now.AddDate(0, -6, 0), cutoff)

	_, ok = store.reaped[periodic.ID]
	assert.False(t, ok, "periodic logs keep their full history")
}
