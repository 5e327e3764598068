package sampling

import (
	"testing"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func onChangeLog(threshold *float64, kwh bool) types.TrendLog {
	return types.TrendLog{
		Period:              types.PeriodOnChange,
		IsKWHCounter:        kwh,
		PercentageThreshold: threshold,
		CleanupPeriod:       intPtr(3),
		EndDate:             time.Now().AddDate(1, 0, 0),
	}
}

func periodicLog(period types.Period, interval int) types.TrendLog {
	return types.TrendLog{
		Period:   period,
		Interval: interval,
		EndDate:  time.Now().AddDate(1, 0, 0),
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		log     types.TrendLog
		wantErr bool
	}{
		{"periodic ok", periodicLog(types.PeriodMinute, 5), false},
		{"periodic zero interval", periodicLog(types.PeriodHour, 0), true},
		{"unknown period", types.TrendLog{Period: "fortnight", Interval: 1}, true},
		{"onChange ok", onChangeLog(floatPtr(1.5), false), false},
		{"onChange kwh ok", onChangeLog(nil, true), false},
		{"threshold below minimum", onChangeLog(floatPtr(0.4), false), true},
		{"threshold above maximum", onChangeLog(floatPtr(150), false), true},
		{"threshold missing", onChangeLog(nil, false), true},
		{"cleanup missing", func() types.TrendLog {
			log := onChangeLog(floatPtr(1), false)
			log.CleanupPeriod = nil
			return log
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.log)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPolicyConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPercentageThreshold(t *testing.T) {
	// lastPersisted=100, threshold=0.5%: 100.4 wird übersprungen (0.4%),
	// 100.6 wird persistiert (0.6%)
	policy, err := NewPolicy(onChangeLog(floatPtr(0.5), false))
	require.NoError(t, err)

	now := time.Now()
	prev := &types.Sample{Timestamp: now.Add(-time.Minute), Value: 100}

	assert.Equal(t, Skip, policy.Evaluate(prev, 100.4, now))
	assert.Equal(t, Persist, policy.Evaluate(prev, 100.6, now))
	assert.Equal(t, Persist, policy.Evaluate(prev, 100.5, now)) // exakt am Schwellwert
	assert.Equal(t, Persist, policy.Evaluate(prev, 99.5, now))  // Änderung nach unten
}

func TestFirstSampleAlwaysPersists(t *testing.T) {
	policy, err := NewPolicy(onChangeLog(floatPtr(5), false))
	require.NoError(t, err)

	assert.Equal(t, Persist, policy.Evaluate(nil, 0, time.Now()))
}

func TestZeroDivisionGuard(t *testing.T) {
	policy, err := NewPolicy(onChangeLog(floatPtr(0.5), false))
	require.NoError(t, err)

	now := time.Now()
	prev := &types.Sample{Timestamp: now.Add(-time.Minute), Value: 0}

	assert.Equal(t, Persist, policy.Evaluate(prev, 0.1, now))
	assert.Equal(t, Skip, policy.Evaluate(prev, 0, now))
}

func TestKWHCounterPersistsEveryChange(t *testing.T) {
	policy, err := NewPolicy(onChangeLog(nil, true))
	require.NoError(t, err)

	now := time.Now()
	prev := &types.Sample{Timestamp: now.Add(-time.Second), Value: 1000.5}

	// Jede noch so kleine Änderung wird persistiert
	assert.Equal(t, Persist, policy.Evaluate(prev, 1000.5001, now))
	assert.Equal(t, Persist, policy.Evaluate(prev, 999, now))
	// Unveränderter Wert nicht
	assert.Equal(t, Skip, policy.Evaluate(prev, 1000.5, now))
}

func TestPeriodicFixedDelay(t *testing.T) {
	policy, err := NewPolicy(periodicLog(types.PeriodMinute, 5))
	require.NoError(t, err)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	prev := &types.Sample{Timestamp: base, Value: 42}

	assert.Equal(t, Skip, policy.Evaluate(prev, 43, base.Add(4*time.Minute)))
	assert.Equal(t, Persist, policy.Evaluate(prev, 43, base.Add(5*time.Minute)))
	assert.Equal(t, Persist, policy.Evaluate(prev, 43, base.Add(7*time.Minute)))

	// Erstes Sample sofort
	assert.Equal(t, Persist, policy.Evaluate(nil, 42, base))
}

func TestPeriodicMonthUsesCalendarArithmetic(t *testing.T) {
	policy, err := NewPolicy(periodicLog(types.PeriodMonth, 1))
	require.NoError(t, err)

	base := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)
	prev := &types.Sample{Timestamp: base, Value: 1}

	assert.Equal(t, Skip, policy.Evaluate(prev, 2, base.AddDate(0, 0, 27)))
	assert.Equal(t, Persist, policy.Evaluate(prev, 2, base.AddDate(0, 2, 0)))
}

func TestExpiry(t *testing.T) {
	log := periodicLog(types.PeriodMinute, 1)
	log.EndDate = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	policy, err := NewPolicy(log)
	require.NoError(t, err)

	before := log.EndDate.Add(-time.Hour)
	after := log.EndDate.Add(time.Hour)

	assert.Equal(t, Persist, policy.Evaluate(nil, 1, before))
	assert.Equal(t, Expired, policy.Evaluate(nil, 1, after))
}

func TestCleanupCutoff(t *testing.T) {
	policy, err := NewPolicy(onChangeLog(floatPtr(1), false))
	require.NoError(t, err)

	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	cutoff, ok := policy.CleanupCutoff(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC), cutoff)

	// Periodische Logs haben keinen Cleanup
	periodic, err := NewPolicy(periodicLog(types.PeriodDay, 1))
	require.NoError(t, err)
	_, ok = periodic.CleanupCutoff(now)
	assert.False(t, ok)
}
