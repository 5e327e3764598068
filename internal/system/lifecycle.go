package system

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/KevinKickass/OpenEnergyCore/internal/analyzers"
    "github.com/KevinKickass/OpenEnergyCore/internal/api/rest"
    "github.com/KevinKickass/OpenEnergyCore/internal/api/websocket"
    "github.com/KevinKickass/OpenEnergyCore/internal/auth"
    "github.com/KevinKickass/OpenEnergyCore/internal/config"
    "github.com/KevinKickass/OpenEnergyCore/internal/interfaces"
    "github.com/KevinKickass/OpenEnergyCore/internal/multilog"
    "github.com/KevinKickass/OpenEnergyCore/internal/storage"
    "github.com/KevinKickass/OpenEnergyCore/internal/trendlogger"
    "github.com/KevinKickass/OpenEnergyCore/internal/types"
    "github.com/KevinKickass/OpenEnergyCore/internal/watch"
    "go.uber.org/zap"
)

type LifecycleManager struct {
    config          *config.Config
    storage         *storage.PostgresClient
    analyzerManager *analyzers.Manager
    watchRegistry   *watch.Registry
    authService     *auth.AuthService
    wsHub           *websocket.Hub
    scheduler       *trendlogger.Scheduler
    reaper          *trendlogger.Reaper
    multiLogEngine  *multilog.Engine
    logger          *zap.Logger

    restServer *rest.Server

    stateMu      sync.RWMutex
    currentState SystemState

    listenersMu     sync.RWMutex
    statusListeners []chan SystemStatus

    shutdownChan chan struct{}
    shutdownOnce sync.Once
}

func NewLifecycleManager(
    store *storage.PostgresClient,
    cfg *config.Config,
    logger *zap.Logger,
) *LifecycleManager {
    lm := &LifecycleManager{
        config:          cfg,
        storage:         store,
        logger:          logger,
        currentState:    StateInitializing,
        shutdownChan:    make(chan struct{}),
        statusListeners: make([]chan SystemStatus, 0),
    }

    // Poller-Werte laufen über die Watch-Registry an die Websocket-Clients.
    // Die Registry existiert beim Manager-Bau noch nicht, daher die Indirektion.
    analyzerManager, err := analyzers.NewManager(cfg.Analyzers.SearchPaths, lm.dispatchValue, logger)
    if err != nil {
        logger.Fatal("Failed to create analyzer manager", zap.Error(err))
    }
    lm.analyzerManager = analyzerManager

    lm.watchRegistry = watch.NewRegistry(analyzers.NewWatchTransport(analyzerManager), logger)
    lm.authService = auth.NewAuthService(store, cfg.Auth)
    lm.wsHub = websocket.NewHub(logger, lm.authService, lm.watchRegistry)

    lm.scheduler = trendlogger.NewScheduler(store, analyzerManager, lm.wsHub, cfg.Sampling.CycleInterval, logger)
    lm.reaper = trendlogger.NewReaper(store, cfg.Sampling.CleanupInterval, logger)
    lm.multiLogEngine = multilog.NewEngine(store, store, logger)

    return lm
}

func (lm *LifecycleManager) dispatchValue(key types.WatchKey, value float64) {
    if lm.watchRegistry != nil {
        lm.watchRegistry.Dispatch(key, value)
    }
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
    lm.logger.Info("Starting OpenEnergyCore")

    // State: Initializing
    lm.setState(StateInitializing)
    lm.broadcastStatus()

    if !lm.config.Auth.IsProductionReady() {
        lm.logger.Warn("Auth is using the development JWT secret, do not run this in production")
    }

    // Load analyzers from database
    if err := lm.loadAnalyzersFromDB(); err != nil {
        lm.logger.Warn("Failed to load analyzers from database", zap.Error(err))
        // Continue anyway, not critical
    }

    // Websocket Hub
    go lm.wsHub.Run()
    go lm.forwardStatusToHub()

    // Trend Logger + Sample Reaper
    if err := lm.scheduler.Start(); err != nil {
        lm.setError(fmt.Errorf("failed to start trend logger: %w", err))
        return err
    }
    if err := lm.reaper.Start(); err != nil {
        lm.setError(fmt.Errorf("failed to start sample reaper: %w", err))
        return err
    }

    // Multi-Log Refresh-Loop
    lm.multiLogEngine.Start(context.Background())

    // Start REST API Server
    if err := lm.startRESTServer(); err != nil {
        lm.setError(fmt.Errorf("failed to start REST API: %w", err))
        return err
    }

    // State: Running
    lm.setState(StateRunning)
    lm.broadcastStatus()

    lm.logger.Info("System started successfully",
        zap.Int("http_port", lm.config.Server.HTTPPort),
        zap.Int("analyzers_loaded", len(lm.analyzerManager.ListDevices())))

    return nil
}

func (lm *LifecycleManager) loadAnalyzersFromDB() error {
    ctx := context.Background()

    analyzersList, err := lm.storage.ListAnalyzers(ctx)
    if err != nil {
        return fmt.Errorf("failed to load analyzers: %w", err)
    }

    lm.logger.Info("Loading analyzers from database", zap.Int("count", len(analyzersList)))

    timeout := lm.config.Modbus.DefaultTimeout

    for _, analyzer := range analyzersList {
        if _, err := lm.analyzerManager.LoadAnalyzer(analyzer, timeout); err != nil {
            lm.logger.Error("Failed to load analyzer",
                zap.String("analyzer", analyzer.Name),
                zap.Error(err))
            continue
        }

        lm.logger.Info("Analyzer loaded and poller started",
            zap.String("analyzer", analyzer.Name))
    }

    return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
    var shutdownErr error

    lm.shutdownOnce.Do(func() {
        lm.logger.Info("Shutting down system")

        lm.setState(StateStopping)
        lm.broadcastStatus()

        shutdownErr = lm.gracefulShutdown(ctx)

        lm.setState(StateStopped)
        lm.broadcastStatus()

        close(lm.shutdownChan)
    })

    return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
    var wg sync.WaitGroup
    errChan := make(chan error, 4)

    // 1. Stop Analyzer Manager (all pollers & connections)
    wg.Add(1)
    go func() {
        defer wg.Done()
        if err := lm.analyzerManager.StopAll(ctx); err != nil {
            errChan <- fmt.Errorf("analyzer manager stop failed: %w", err)
        }
    }()

    // 2. Trend Logger, Reaper und Multi-Log Engine
    wg.Add(1)
    go func() {
        defer wg.Done()
        lm.scheduler.Stop()
        lm.reaper.Stop()
        lm.multiLogEngine.Close()
    }()

    // 3. REST API Server graceful shutdown
    if lm.restServer != nil {
        wg.Add(1)
        go func() {
            defer wg.Done()
            shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
            defer cancel()

            if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
                errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
            }
        }()
    }

    // Wait for all shutdowns
    done := make(chan struct{})
    go func() {
        wg.Wait()
        close(done)
    }()

    select {
    case <-done:
        lm.logger.Info("Graceful shutdown completed")
        return nil
    case <-ctx.Done():
        lm.logger.Warn("Shutdown timeout, forcing stop")
        return fmt.Errorf("shutdown timeout exceeded")
    case err := <-errChan:
        return err
    }
}

func (lm *LifecycleManager) startRESTServer() error {
    lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
    return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
    lm.stateMu.Lock()
    defer lm.stateMu.Unlock()

    if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
        lm.logger.Warn("Unexpected state transition", zap.Error(err))
    }
    lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
    lm.logger.Error("System entering error state", zap.Error(err))
    lm.stateMu.Lock()
    lm.currentState = StateError
    lm.stateMu.Unlock()
    lm.broadcastStatus()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
    lm.stateMu.RLock()
    state := lm.currentState
    lm.stateMu.RUnlock()

    devices := lm.analyzerManager.ListDevices()
    connected := 0
    for _, d := range devices {
        if d.IsConnected() {
            connected++
        }
    }

    activeTrendLogs := 0
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if logs, err := lm.storage.ListTrendLogs(ctx); err == nil {
        activeTrendLogs = len(logs)
    }

    return interfaces.SystemStatus{
        State:              state.String(),
        AnalyzerCount:      len(devices),
        ConnectedAnalyzers: connected,
        ActiveTrendLogs:    activeTrendLogs,
    }
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
    lm.stateMu.RLock()
    defer lm.stateMu.RUnlock()

    return newStatus(lm.currentState)
}

func (lm *LifecycleManager) broadcastStatus() {
    status := lm.getStatusInternal()

    lm.listenersMu.RLock()
    defer lm.listenersMu.RUnlock()

    for _, listener := range lm.statusListeners {
        select {
        case listener <- status:
        default:
            // Channel full, skip
        }
    }
}

// forwardStatusToHub pusht Statuswechsel an alle Websocket-Clients
func (lm *LifecycleManager) forwardStatusToHub() {
    ch := lm.SubscribeStatus()
    defer lm.UnsubscribeStatus(ch)

    for {
        select {
        case status, ok := <-ch:
            if !ok {
                return
            }
            lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, map[string]interface{}{
                "state":     status.State.String(),
                "timestamp": status.Timestamp,
            }))
        case <-lm.shutdownChan:
            return
        }
    }
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
    ch := make(chan SystemStatus, 10)

    lm.listenersMu.Lock()
    lm.statusListeners = append(lm.statusListeners, ch)
    lm.listenersMu.Unlock()

    return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
    lm.listenersMu.Lock()
    defer lm.listenersMu.Unlock()

    for i, listener := range lm.statusListeners {
        if listener == ch {
            lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
            close(ch)
            break
        }
    }
}

// AnalyzerManager returns the analyzer manager
func (lm *LifecycleManager) AnalyzerManager() *analyzers.Manager {
    return lm.analyzerManager
}

// MultiLogEngine returns the multi log engine
func (lm *LifecycleManager) MultiLogEngine() *multilog.Engine {
    return lm.multiLogEngine
}

// WatchRegistry returns the live watch registry
func (lm *LifecycleManager) WatchRegistry() *watch.Registry {
    return lm.watchRegistry
}

// Storage returns the storage client
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
    return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
    return lm.config
}
