package multilog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SampleFetcher holt die letzten Samples eines Trend Logs.
// Gibt storage.ErrNotFound zurück, wenn das Log nicht mehr existiert;
// der HTTP-404 Check der Aufrufstellen ist dort zentralisiert.
type SampleFetcher interface {
	FetchSamples(ctx context.Context, trendLogID uuid.UUID, limit int) ([]types.Sample, error)
}

// ConfigStore persistiert benannte Multi-Log Auswahlen
type ConfigStore interface {
	SaveMultiLogConfig(ctx context.Context, cfg types.MultiLogConfig) error
	DeleteMultiLogConfig(ctx context.Context, id uuid.UUID) error
}

type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series ist eine stabile Chart-Serie für genau ein Trend Log
type Series struct {
	TrendLogID uuid.UUID     `json:"trend_log_id"`
	Name       string        `json:"name"`
	Points     []SeriesPoint `json:"points"`
}

const (
	DefaultLogLimit    = 100
	DefaultRefreshRate = 30 // Sekunden
)

// Engine hält das Live-Dashboard korrekt, während sich drei Dinge
// gleichzeitig ändern: die Auswahl des Users, der Refresh-Timer und die
// dahinterliegenden Entitäten (Logs und Configs können von anderen
// Akteuren gelöscht werden).
//
// Deletion-Bookkeeping ist monoton: eine einmal als gelöscht markierte ID
// wird nie wieder freigegeben, auch wenn ein späterer Fetch geklappt hätte.
// Das tauscht perfekte Genauigkeit gegen Flapping-Freiheit.
type Engine struct {
	mu sync.Mutex

	fetcher SampleFetcher
	configs ConfigStore
	logger  *zap.Logger

	selected     []types.TrendLog
	logLimit     int
	refreshRate  int // Sekunden
	activeConfig *types.MultiLogConfig
	knownDeleted map[uuid.UUID]struct{}
	series       []Series

	// Ein Tick pro Engine-Instanz gleichzeitig; überlappende Ticks werden
	// übersprungen, nicht eingereiht (Staleness vor Out-of-Order)
	tickActive bool

	trigger   chan struct{}
	rearm     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewEngine(fetcher SampleFetcher, configs ConfigStore, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher:      fetcher,
		configs:      configs,
		logger:       logger,
		logLimit:     DefaultLogLimit,
		refreshRate:  DefaultRefreshRate,
		knownDeleted: make(map[uuid.UUID]struct{}),
		trigger:      make(chan struct{}, 1),
		rearm:        make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start startet die Timer-Schleife der Engine
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-e.trigger:
			ticker.Reset(e.refreshInterval())
			e.RefreshTick(ctx)
		case <-e.rearm:
			ticker.Reset(e.refreshInterval())
		case <-ticker.C:
			if e.TimerArmed() {
				e.RefreshTick(ctx)
			}
		}
	}
}

func (e *Engine) refreshInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.refreshRate) * time.Second
}

// Close gibt Timer und Zustand frei; mehrfach aufrufbar
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = nil
	e.series = nil
}

// SelectLogs ersetzt die aktive Auswahl. Eine leere Auswahl cancelt den
// Timer und leert die Chart-Serien, sonst wird der Timer neu gestellt und
// sofort ein Fetch angestoßen.
func (e *Engine) SelectLogs(logs []types.TrendLog) {
	e.mu.Lock()
	filtered := make([]types.TrendLog, 0, len(logs))
	for _, log := range logs {
		if _, deleted := e.knownDeleted[log.ID]; !deleted {
			filtered = append(filtered, log)
		}
	}
	e.selected = filtered
	empty := len(filtered) == 0
	if empty {
		e.series = nil
	}
	e.mu.Unlock()

	if empty {
		return
	}

	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// ClearSelection leert Auswahl, Timer und Chart bedingungslos, unabhängig
// vom Deletion-Bookkeeping
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = nil
	e.series = nil
}

// ApplyConfig aktiviert eine gespeicherte Auswahl. logs ist die Teilmenge
// der noch existierenden Trend Logs aus cfg.TrendLogIDs.
func (e *Engine) ApplyConfig(cfg types.MultiLogConfig, logs []types.TrendLog) {
	e.mu.Lock()
	cfgCopy := cfg
	e.activeConfig = &cfgCopy
	e.logLimit = cfg.LogLimit
	e.refreshRate = cfg.RefreshRate
	e.mu.Unlock()

	e.SelectLogs(logs)
}

// SetRefreshRate übernimmt den Wert lokal und persistiert ihn best-effort
// in die aktive Config. Schlägt der Remote-Write fehl, wird die lokale
// Rate auf den letzten bekannten Config-Wert zurückgerollt.
func (e *Engine) SetRefreshRate(ctx context.Context, seconds int) error {
	e.mu.Lock()
	previous := e.refreshRate
	e.refreshRate = seconds
	cfg := e.cloneActiveConfig()
	e.mu.Unlock()

	select {
	case e.rearm <- struct{}{}:
	default:
	}

	if cfg == nil {
		return nil
	}

	cfg.RefreshRate = seconds
	if err := e.configs.SaveMultiLogConfig(ctx, *cfg); err != nil {
		e.mu.Lock()
		if e.activeConfig != nil {
			e.refreshRate = e.activeConfig.RefreshRate
		} else {
			e.refreshRate = previous
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if e.activeConfig != nil && e.activeConfig.ID == cfg.ID {
		e.activeConfig.RefreshRate = seconds
	}
	e.mu.Unlock()
	return nil
}

// SetLogLimit übernimmt den Wert lokal und persistiert best-effort.
// Kein Rollback bei Remote-Fehler: der lokale Wert ist für die aktuelle
// Ansicht maßgeblich.
func (e *Engine) SetLogLimit(ctx context.Context, n int) error {
	e.mu.Lock()
	e.logLimit = n
	cfg := e.cloneActiveConfig()
	e.mu.Unlock()

	if cfg == nil {
		return nil
	}

	cfg.LogLimit = n
	if err := e.configs.SaveMultiLogConfig(ctx, *cfg); err != nil {
		return err
	}

	e.mu.Lock()
	if e.activeConfig != nil && e.activeConfig.ID == cfg.ID {
		e.activeConfig.LogLimit = n
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) cloneActiveConfig() *types.MultiLogConfig {
	if e.activeConfig == nil {
		return nil
	}
	cfg := *e.activeConfig
	cfg.TrendLogIDs = append([]uuid.UUID(nil), e.activeConfig.TrendLogIDs...)
	return &cfg
}

// RefreshTick holt für jedes ausgewählte, nicht als gelöscht bekannte Log
// die letzten logLimit Samples und reconciled Auswahl und aktive Config
// gegen dabei entdeckte Löschungen.
func (e *Engine) RefreshTick(ctx context.Context) {
	e.mu.Lock()
	if e.tickActive {
		e.mu.Unlock()
		e.logger.Debug("Refresh tick skipped, previous tick still in flight")
		return
	}
	e.tickActive = true
	logs := make([]types.TrendLog, 0, len(e.selected))
	for _, log := range e.selected {
		if _, deleted := e.knownDeleted[log.ID]; !deleted {
			logs = append(logs, log)
		}
	}
	limit := e.logLimit
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.tickActive = false
		e.mu.Unlock()
	}()

	var newlyDeleted []uuid.UUID
	var fetched []Series

	for _, log := range logs {
		samples, err := e.fetcher.FetchSamples(ctx, log.ID, limit)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Bestätigt gelöscht: permanent markieren, kein Re-Check
			newlyDeleted = append(newlyDeleted, log.ID)
			e.logger.Info("Trend log no longer exists, removing from selection",
				zap.String("trend_log_id", log.ID.String()))
		case err != nil:
			// Transienter Fehler wird konservativ wie gelöscht behandelt,
			// um einen Retry-Storm gegen ein möglicherweise wirklich
			// gelöschtes Log zu vermeiden. Bewusster Trade-off: ein nur
			// kurz unerreichbares Log fällt damit dauerhaft aus der
			// Auswahl dieser Engine-Instanz.
			newlyDeleted = append(newlyDeleted, log.ID)
			e.logger.Warn("Trend log fetch failed, tentatively marking as deleted",
				zap.String("trend_log_id", log.ID.String()),
				zap.Error(err))
		case len(samples) > 0:
			fetched = append(fetched, buildSeries(log, samples))
		}
	}

	e.reconcile(ctx, newlyDeleted, fetched)
}

// reconcile wendet Tick-Ergebnisse gegen den AKTUELLEN Zustand an, nicht
// gegen den Snapshot vom Tick-Beginn: die Auswahl kann sich während des
// Fetches geändert haben.
func (e *Engine) reconcile(ctx context.Context, newlyDeleted []uuid.UUID, fetched []Series) {
	e.mu.Lock()

	for _, id := range newlyDeleted {
		e.knownDeleted[id] = struct{}{}
	}

	// Invariante: selected enthält nach jedem Tick keine bekannt
	// gelöschte ID mehr
	surviving := e.selected[:0]
	for _, log := range e.selected {
		if _, deleted := e.knownDeleted[log.ID]; !deleted {
			surviving = append(surviving, log)
		}
	}
	e.selected = surviving

	selectedNow := make(map[uuid.UUID]struct{}, len(e.selected))
	for _, log := range e.selected {
		selectedNow[log.ID] = struct{}{}
	}

	if len(e.selected) == 0 {
		// Alles gelöscht oder abgewählt: Chart leeren, Timer ruht
		e.series = nil
	} else if len(fetched) > 0 {
		// Serie nur ersetzen, wenn mindestens ein Log Daten geliefert
		// hat; ein komplett leerer Tick (transienter Ausfall) lässt das
		// alte Chart stehen statt es leer zu blitzen
		current := make([]Series, 0, len(fetched))
		for _, s := range fetched {
			if _, ok := selectedNow[s.TrendLogID]; ok {
				current = append(current, s)
			}
		}
		if len(current) > 0 {
			e.series = current
		}
	}

	cfg, deleteCfg := e.pruneActiveConfigLocked()
	e.mu.Unlock()

	// Config-Persistenz best-effort außerhalb des Locks
	if deleteCfg {
		if err := e.configs.DeleteMultiLogConfig(ctx, cfg.ID); err != nil {
			e.logger.Warn("Failed to delete orphaned multi-log config",
				zap.String("config", cfg.Name), zap.Error(err))
		} else {
			e.logger.Info("Deleted multi-log config, all its trend logs are gone",
				zap.String("config", cfg.Name))
		}
	} else if cfg != nil {
		if err := e.configs.SaveMultiLogConfig(ctx, *cfg); err != nil {
			e.logger.Warn("Failed to persist pruned multi-log config",
				zap.String("config", cfg.Name), zap.Error(err))
		}
	}
}

// pruneActiveConfigLocked entfernt gelöschte Logs aus der aktiven Config.
// Rückgabe: zu persistierende Config oder (cfg, true) wenn sie komplett
// gelöscht werden soll. Lokaler Zustand wird sofort aktualisiert, der
// Remote-Write folgt best-effort.
func (e *Engine) pruneActiveConfigLocked() (*types.MultiLogConfig, bool) {
	if e.activeConfig == nil {
		return nil, false
	}

	survivors := make([]uuid.UUID, 0, len(e.activeConfig.TrendLogIDs))
	for _, id := range e.activeConfig.TrendLogIDs {
		if _, deleted := e.knownDeleted[id]; !deleted {
			survivors = append(survivors, id)
		}
	}

	if len(survivors) == len(e.activeConfig.TrendLogIDs) {
		return nil, false
	}

	if len(survivors) == 0 {
		// Leere Configs werden gelöscht statt leer gespeichert
		cfg := e.cloneActiveConfig()
		e.activeConfig = nil
		return cfg, true
	}

	e.activeConfig.TrendLogIDs = survivors
	return e.cloneActiveConfig(), false
}

func buildSeries(log types.TrendLog, samples []types.Sample) Series {
	points := make([]SeriesPoint, len(samples))
	for i, s := range samples {
		points[i] = SeriesPoint{Timestamp: s.Timestamp, Value: s.Value}
	}
	name := log.RegisterID
	if log.Register.Unit != "" {
		name += " (" + log.Register.Unit + ")"
	}
	return Series{TrendLogID: log.ID, Name: name, Points: points}
}

// TimerArmed meldet, ob der Refresh-Timer aktiv Arbeit erzeugt
func (e *Engine) TimerArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.selected) > 0
}

// Series liefert die aktuellen Chart-Serien
func (e *Engine) Series() []Series {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Series, len(e.series))
	copy(out, e.series)
	return out
}

// SelectedIDs liefert die IDs der aktiven Auswahl
func (e *Engine) SelectedIDs() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]uuid.UUID, len(e.selected))
	for i, log := range e.selected {
		ids[i] = log.ID
	}
	return ids
}

// KnownDeleted liefert die Anzahl dauerhaft als gelöscht markierter Logs
func (e *Engine) KnownDeleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.knownDeleted)
}

// ActiveConfig liefert eine Kopie der aktiven Config, falls gesetzt
func (e *Engine) ActiveConfig() *types.MultiLogConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloneActiveConfig()
}

// RefreshRate liefert die aktuelle Rate in Sekunden
func (e *Engine) RefreshRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshRate
}

// LogLimit liefert das aktuelle Sample-Limit pro Log
func (e *Engine) LogLimit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logLimit
}
