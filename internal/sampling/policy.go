package sampling

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
)

// Entscheidung der Policy für einen Kandidatenwert
type Decision int

const (
	Skip Decision = iota
	Persist
	Expired
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "SKIP"
	case Persist:
		return "PERSIST"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Minimaler Prozent-Schwellwert für onChange Logs, wird bei der
// Konfiguration erzwungen, nie zur Laufzeit
const MinPercentageThreshold = 0.5

var ErrInvalidPolicyConfig = errors.New("invalid sampling policy config")

// Policy entscheidet, ob ein dekodierter Wert persistiert wird.
// Die gesamte Periodic/onChange/KWH Verzweigung lebt hier, Formulare und
// Consumer setzen nur Konfiguration.
type Policy struct {
	log types.TrendLog
}

func NewPolicy(log types.TrendLog) (*Policy, error) {
	if err := ValidateConfig(log); err != nil {
		return nil, err
	}
	return &Policy{log: log}, nil
}

// ValidateConfig prüft die Trend-Log Konfiguration bei Erstellung.
// Fehler hier sind PolicyConfigError im Sinne der Fehlertaxonomie:
// sie verhindern das Anlegen des Logs und treten nie zur Laufzeit auf.
func ValidateConfig(log types.TrendLog) error {
	if !log.Period.Valid() {
		return fmt.Errorf("%w: unknown period %q", ErrInvalidPolicyConfig, log.Period)
	}

	if log.Period == types.PeriodOnChange {
		if log.CleanupPeriod == nil || *log.CleanupPeriod < 1 {
			return fmt.Errorf("%w: onChange requires a cleanup period in months", ErrInvalidPolicyConfig)
		}
		if !log.IsKWHCounter {
			if log.PercentageThreshold == nil {
				return fmt.Errorf("%w: onChange without KWH counter requires a percentage threshold", ErrInvalidPolicyConfig)
			}
			if *log.PercentageThreshold < MinPercentageThreshold || *log.PercentageThreshold > 100 {
				return fmt.Errorf("%w: percentage threshold %.2f not in [%.1f, 100]",
					ErrInvalidPolicyConfig, *log.PercentageThreshold, MinPercentageThreshold)
			}
		}
		return nil
	}

	if log.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1 for period %s", ErrInvalidPolicyConfig, log.Period)
	}
	return nil
}

// Evaluate entscheidet für einen Kandidatenwert gegen das zuletzt
// persistierte Sample. prev == nil bedeutet: noch nie persistiert.
func (p *Policy) Evaluate(prev *types.Sample, value float64, now time.Time) Decision {
	// Abgelaufene Logs werden nicht mehr ausgewertet; der Aufrufer soll
	// kein Decode-Scheduling mehr für dieses Register machen
	if !p.log.EndDate.IsZero() && now.After(p.log.EndDate) {
		return Expired
	}

	if p.log.Period == types.PeriodOnChange {
		return p.evaluateOnChange(prev, value)
	}
	return p.evaluatePeriodic(prev, now)
}

// evaluatePeriodic: fixed-delay ab dem letzten persistierten Sample,
// keine Drift-Korrektur auf Wall-Clock Grenzen
func (p *Policy) evaluatePeriodic(prev *types.Sample, now time.Time) Decision {
	if prev == nil {
		return Persist
	}
	if !now.Before(p.nextDue(prev.Timestamp)) {
		return Persist
	}
	return Skip
}

func (p *Policy) nextDue(last time.Time) time.Time {
	n := p.log.Interval
	switch p.log.Period {
	case types.PeriodMinute:
		return last.Add(time.Duration(n) * time.Minute)
	case types.PeriodHour:
		return last.Add(time.Duration(n) * time.Hour)
	case types.PeriodDay:
		return last.AddDate(0, 0, n)
	case types.PeriodWeek:
		return last.AddDate(0, 0, 7*n)
	case types.PeriodMonth:
		return last.AddDate(0, n, 0)
	default:
		return last.Add(time.Duration(n) * time.Minute)
	}
}

func (p *Policy) evaluateOnChange(prev *types.Sample, value float64) Decision {
	// Erstes Sample persistiert immer, auch gegen den Null-Teiler Guard
	if prev == nil {
		return Persist
	}

	// KWH Zähler: jede Änderung zählt für die Abrechnungsgenauigkeit,
	// kein Schwellwert-Filter
	if p.log.IsKWHCounter {
		if value != prev.Value {
			return Persist
		}
		return Skip
	}

	if prev.Value == 0 {
		if value != 0 {
			return Persist
		}
		return Skip
	}

	changePct := math.Abs(value-prev.Value) / math.Abs(prev.Value) * 100
	if changePct >= *p.log.PercentageThreshold {
		return Persist
	}
	return Skip
}

// CleanupCutoff liefert den Zeitpunkt, vor dem onChange Samples vom Reaper
// gelöscht werden dürfen. Für Logs ohne Cleanup-Periode gibt es keinen Cutoff.
func (p *Policy) CleanupCutoff(now time.Time) (time.Time, bool) {
	if p.log.Period != types.PeriodOnChange || p.log.CleanupPeriod == nil {
		return time.Time{}, false
	}
	return now.AddDate(0, -*p.log.CleanupPeriod, 0), true
}
