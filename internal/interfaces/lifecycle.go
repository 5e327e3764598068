package interfaces

import (
    "context"

    "github.com/KevinKickass/OpenEnergyCore/internal/analyzers"
    "github.com/KevinKickass/OpenEnergyCore/internal/config"
    "github.com/KevinKickass/OpenEnergyCore/internal/multilog"
    "github.com/KevinKickass/OpenEnergyCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
    State              string `json:"state"`
    AnalyzerCount      int    `json:"analyzer_count"`
    ConnectedAnalyzers int    `json:"connected_analyzers"`
    ActiveTrendLogs    int    `json:"active_trend_logs"`
}

type LifecycleManager interface {
    Config() *config.Config
    Storage() *storage.PostgresClient
    AnalyzerManager() *analyzers.Manager
    MultiLogEngine() *multilog.Engine
    GetCurrentStatus() SystemStatus
    Shutdown(ctx context.Context) error
}
