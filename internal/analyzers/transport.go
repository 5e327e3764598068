package analyzers

import (
	"fmt"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
)

// WatchTransport bindet die WatchRegistry an die Poller-Flotte. Die Poller
// lesen ohnehin zyklisch alle Profilregister; Subscribe prüft deshalb nur,
// dass der Analyzer geladen ist, und Werte fließen über den ValueSink als
// Dispatch in die Registry.
type WatchTransport struct {
	manager *Manager
}

func NewWatchTransport(manager *Manager) *WatchTransport {
	return &WatchTransport{manager: manager}
}

func (t *WatchTransport) Subscribe(analyzerID string, desc types.RegisterDescriptor) error {
	id, err := uuid.Parse(analyzerID)
	if err != nil {
		return fmt.Errorf("invalid analyzer id: %w", err)
	}
	if _, exists := t.manager.GetDevice(id); !exists {
		return fmt.Errorf("analyzer not loaded: %s", analyzerID)
	}
	return nil
}

func (t *WatchTransport) Unsubscribe(analyzerID string, desc types.RegisterDescriptor) error {
	return nil
}
