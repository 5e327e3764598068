package analyzers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager hält die Analyzer-Flotte: pro Analyzer ein Device mit eigener
// Modbus-Verbindung und eigenem Poller
type Manager struct {
	loader  *ProfileLoader
	devices map[uuid.UUID]*Device
	pollers map[uuid.UUID]*Poller
	sink    ValueSink
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewManager(searchPaths []string, sink ValueSink, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{
		loader:  loader,
		devices: make(map[uuid.UUID]*Device),
		pollers: make(map[uuid.UUID]*Poller),
		sink:    sink,
		logger:  logger,
	}, nil
}

// LoadAnalyzer lädt das Profil, verbindet das Gerät und startet den Poller
func (m *Manager) LoadAnalyzer(analyzer types.Analyzer, timeout time.Duration) (*Device, error) {
	profile, err := m.loader.Load(analyzer.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", analyzer.Profile, err)
	}

	device := NewDevice(analyzer, profile, timeout)

	if err := device.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect analyzer: %w", err)
	}

	interval := time.Duration(profile.Connection.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	poller := NewPoller(device, interval, m.sink, m.logger)
	if err := poller.Start(); err != nil {
		return nil, fmt.Errorf("failed to start poller: %w", err)
	}

	m.mu.Lock()
	m.devices[analyzer.ID] = device
	m.pollers[analyzer.ID] = poller
	m.mu.Unlock()

	m.logger.Info("Analyzer loaded",
		zap.String("name", analyzer.Name),
		zap.String("profile", analyzer.Profile),
		zap.String("address", analyzer.IPAddress))

	return device, nil
}

// UnloadAnalyzer stoppt Poller und trennt die Verbindung
func (m *Manager) UnloadAnalyzer(analyzerID uuid.UUID) error {
	m.mu.Lock()
	device, exists := m.devices[analyzerID]
	poller := m.pollers[analyzerID]
	delete(m.devices, analyzerID)
	delete(m.pollers, analyzerID)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("analyzer not loaded: %s", analyzerID)
	}

	if poller != nil {
		poller.Stop()
	}
	return device.Disconnect()
}

// GetDevice returns device by analyzer ID
func (m *Manager) GetDevice(analyzerID uuid.UUID) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[analyzerID]
	return device, exists
}

// GetDeviceByName returns device by analyzer name
func (m *Manager) GetDeviceByName(name string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, device := range m.devices {
		if device.Analyzer.Name == name {
			return device, true
		}
	}

	return nil, false
}

// ListDevices returns all loaded devices
func (m *Manager) ListDevices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*Device, 0, len(m.devices))
	for _, device := range m.devices {
		devices = append(devices, device)
	}

	return devices
}

// ReadDescriptor liest einen Descriptor über den passenden Analyzer.
// Erfüllt das RegisterReader Interface des Trend Loggers.
func (m *Manager) ReadDescriptor(ctx context.Context, analyzerID uuid.UUID, desc types.RegisterDescriptor) (float64, error) {
	device, exists := m.GetDevice(analyzerID)
	if !exists {
		return 0, fmt.Errorf("analyzer not loaded: %s", analyzerID)
	}
	return device.ReadDescriptor(ctx, desc)
}

// StopAll stops all pollers and disconnects all analyzers
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, poller := range m.pollers {
		poller.Stop()
	}

	for _, device := range m.devices {
		if err := device.Disconnect(); err != nil {
			m.logger.Error("Failed to disconnect analyzer",
				zap.String("analyzer", device.Analyzer.Name),
				zap.Error(err))
		}
	}

	return nil
}
