package types

import (
	"time"

	"github.com/google/uuid"
)

// Sampling-Periode eines Trend Logs
type Period string

const (
	PeriodMinute   Period = "minute"
	PeriodHour     Period = "hour"
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodOnChange Period = "onChange"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodMinute, PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodOnChange:
		return true
	default:
		return false
	}
}

// TrendLog ist eine persistierte, policy-gesteuerte Zeitreihe über genau
// ein Register. Der RegisterDescriptor wird bei Erstellung kopiert
// (Decode-Konsistenz über die Lebenszeit des Logs).
type TrendLog struct {
	ID         uuid.UUID          `json:"id"`
	AnalyzerID uuid.UUID          `json:"analyzer_id"`
	RegisterID string             `json:"register_id"`
	Register   RegisterDescriptor `json:"register"`
	Period     Period             `json:"period"`
	// Interval wird bei period=onChange ignoriert
	Interval     int  `json:"interval"`
	IsKWHCounter bool `json:"is_kwh_counter"`
	// PercentageThreshold nur bei onChange ohne KWH Counter, 0.5–100
	PercentageThreshold *float64 `json:"percentage_threshold,omitempty"`
	// CleanupPeriod in Monaten, nur bei onChange
	CleanupPeriod *int      `json:"cleanup_period,omitempty"`
	EndDate       time.Time `json:"end_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Sample ist ein append-only Messwert eines Trend Logs
type Sample struct {
	TrendLogID uuid.UUID `json:"trend_log_id"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// MultiLogConfig ist eine benannte, gespeicherte Auswahl von Trend Logs
// für das Live-Dashboard
type MultiLogConfig struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	TrendLogIDs []uuid.UUID `json:"trend_log_ids"`
	LogLimit    int         `json:"log_limit"`
	RefreshRate int         `json:"refresh_rate"` // Sekunden
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
