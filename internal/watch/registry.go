package watch

import (
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport ist der externe Kollaborateur, der die eigentliche
// Wire-Subscription öffnet und schließt (Websocket-Kanal, Poller, ...)
type Transport interface {
	Subscribe(analyzerID string, desc types.RegisterDescriptor) error
	Unsubscribe(analyzerID string, desc types.RegisterDescriptor) error
}

// Callback wird synchron mit dem dekodierten Wert aufgerufen
type Callback func(value float64)

type SubscriptionID = uuid.UUID

type subscriber struct {
	id       SubscriptionID
	callback Callback
}

type entry struct {
	analyzerID  string
	desc        types.RegisterDescriptor
	subscribers []subscriber
}

// Registry dedupliziert Live-Subscriptions: eine Wire-Subscription pro
// WatchKey, beliebig viele UI-Subscriber dahinter.
//
// Invariante: die Wire-Subscription existiert genau dann, wenn mindestens
// ein Callback für den Key registriert ist, und wird höchstens einmal
// geschlossen. Check-then-act auf "letzter Subscriber" läuft komplett
// unter dem Mutex.
type Registry struct {
	mu        sync.Mutex
	entries   map[types.WatchKey]*entry
	byID      map[SubscriptionID]types.WatchKey
	transport Transport
	connected bool
	logger    *zap.Logger
}

func NewRegistry(transport Transport, logger *zap.Logger) *Registry {
	return &Registry{
		entries:   make(map[types.WatchKey]*entry),
		byID:      make(map[SubscriptionID]types.WatchKey),
		transport: transport,
		connected: true,
		logger:    logger,
	}
}

// Watch registriert einen Callback für das Register. Die erste Subscription
// eines Keys öffnet die Wire-Subscription, alle weiteren hängen sich dran.
func (r *Registry) Watch(analyzerID string, desc types.RegisterDescriptor, cb Callback) (SubscriptionID, error) {
	key := types.NewWatchKey(analyzerID, desc)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists {
		// Bei getrennter Verbindung wird die Wire-Subscription erst beim
		// Reconnect nachgeholt, der Subscriber-Zustand bleibt vollständig
		if r.connected {
			if err := r.transport.Subscribe(analyzerID, desc); err != nil {
				return uuid.Nil, fmt.Errorf("failed to open wire subscription for %s: %w", key, err)
			}
		}
		e = &entry{analyzerID: analyzerID, desc: desc}
		r.entries[key] = e
	}

	id := uuid.New()
	e.subscribers = append(e.subscribers, subscriber{id: id, callback: cb})
	r.byID[id] = key

	r.logger.Debug("Register watch added",
		zap.String("key", key.String()),
		zap.Int("subscribers", len(e.subscribers)))

	return id, nil
}

// Unwatch entfernt den Callback. Der letzte Subscriber eines Keys schließt
// die Wire-Subscription. Unwatch auf eine bereits freigegebene Subscription
// ist ein No-op, kein Fehler.
func (r *Registry) Unwatch(id SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	e := r.entries[key]
	if e == nil {
		return
	}

	for i, sub := range e.subscribers {
		if sub.id == id {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			break
		}
	}

	if len(e.subscribers) == 0 {
		delete(r.entries, key)
		if r.connected {
			if err := r.transport.Unsubscribe(e.analyzerID, e.desc); err != nil {
				r.logger.Warn("Failed to close wire subscription",
					zap.String("key", key.String()),
					zap.Error(err))
			}
		}
		r.logger.Debug("Wire subscription closed", zap.String("key", key.String()))
	}
}

// Dispatch ruft alle registrierten Callbacks für den Key synchron auf
func (r *Registry) Dispatch(key types.WatchKey, value float64) {
	r.mu.Lock()
	e := r.entries[key]
	var callbacks []Callback
	if e != nil {
		callbacks = make([]Callback, len(e.subscribers))
		for i, sub := range e.subscribers {
			callbacks[i] = sub.callback
		}
	}
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(value)
	}
}

// HandleDisconnect markiert den Kanal als getrennt. Subscriber-Zustand
// bleibt erhalten, damit ein Reconnect transparent ist; Aufrufer werden
// über transiente Trennungen nicht informiert.
func (r *Registry) HandleDisconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	r.logger.Info("Watch transport disconnected, retaining subscriptions",
		zap.Int("keys", len(r.entries)))
}

// HandleReconnect stellt alle Wire-Subscriptions wieder her
func (r *Registry) HandleReconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected = true
	for key, e := range r.entries {
		if err := r.transport.Subscribe(e.analyzerID, e.desc); err != nil {
			r.logger.Warn("Resubscribe failed",
				zap.String("key", key.String()),
				zap.Error(err))
		}
	}
	r.logger.Info("Watch transport reconnected", zap.Int("keys", len(r.entries)))
}

// ActiveKeys liefert die Anzahl offener Wire-Subscriptions
func (r *Registry) ActiveKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
