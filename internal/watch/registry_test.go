package watch

import (
	"errors"
	"sync"
	"testing"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu           sync.Mutex
	subscribes   []types.WatchKey
	unsubscribes []types.WatchKey
	failNext     error
}

func (f *fakeTransport) Subscribe(analyzerID string, desc types.RegisterDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.subscribes = append(f.subscribes, types.NewWatchKey(analyzerID, desc))
	return nil
}

func (f *fakeTransport) Unsubscribe(analyzerID string, desc types.RegisterDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, types.NewWatchKey(analyzerID, desc))
	return nil
}

func testDesc() types.RegisterDescriptor {
	return types.RegisterDescriptor{
		Address:   100,
		DataType:  types.DataTypeFloat32,
		ByteOrder: types.ByteOrderABCD,
		Scale:     1,
	}
}

func TestWatchReferenceCounting(t *testing.T) {
	transport := &fakeTransport{}
	registry := NewRegistry(transport, zap.NewNop())
	desc := testDesc()

	// Zwei Subscriber auf denselben Key: genau eine Wire-Subscription
	id1, err := registry.Watch("analyzer-1", desc, func(float64) {})
	require.NoError(t, err)
	id2, err := registry.Watch("analyzer-1", desc, func(float64) {})
	require.NoError(t, err)

	assert.Len(t, transport.subscribes, 1)
	assert.Equal(t, 1, registry.ActiveKeys())

	// Erster Unwatch lässt die Wire-Subscription offen
	registry.Unwatch(id1)
	assert.Empty(t, transport.unsubscribes)
	assert.Equal(t, 1, registry.ActiveKeys())

	// Zweiter Unwatch schließt sie
	registry.Unwatch(id2)
	assert.Len(t, transport.unsubscribes, 1)
	assert.Equal(t, 0, registry.ActiveKeys())

	// Unwatch auf bereits freigegebene Subscription ist ein No-op
	registry.Unwatch(id2)
	assert.Len(t, transport.unsubscribes, 1)
}

func TestWatchDistinctKeys(t *testing.T) {
	transport := &fakeTransport{}
	registry := NewRegistry(transport, zap.NewNop())

	descA := testDesc()
	descB := testDesc()
	descB.Address = 200

	_, err := registry.Watch("analyzer-1", descA, func(float64) {})
	require.NoError(t, err)
	_, err = registry.Watch("analyzer-1", descB, func(float64) {})
	require.NoError(t, err)
	_, err = registry.Watch("analyzer-2", descA, func(float64) {})
	require.NoError(t, err)

	assert.Len(t, transport.subscribes, 3)
	assert.Equal(t, 3, registry.ActiveKeys())
}

func TestBoolBitInKey(t *testing.T) {
	transport := &fakeTransport{}
	registry := NewRegistry(transport, zap.NewNop())

	desc := testDesc()
	desc.DataType = types.DataTypeBool
	desc.Bit = 0
	_, err := registry.Watch("analyzer-1", desc, func(float64) {})
	require.NoError(t, err)

	desc.Bit = 3
	_, err = registry.Watch("analyzer-1", desc, func(float64) {})
	require.NoError(t, err)

	// Unterschiedliche Bits sind unterschiedliche Wire-Subscriptions
	assert.Equal(t, 2, registry.ActiveKeys())
}

func TestDispatchFansOut(t *testing.T) {
	transport := &fakeTransport{}
	registry := NewRegistry(transport, zap.NewNop())
	desc := testDesc()

	var got1, got2 []float64
	_, err := registry.Watch("analyzer-1", desc, func(v float64) { got1 = append(got1, v) })
	require.NoError(t, err)
	_, err = registry.Watch("analyzer-1", desc, func(v float64) { got2 = append(got2, v) })
	require.NoError(t, err)

	key := types.NewWatchKey("analyzer-1", desc)
	registry.Dispatch(key, 230.5)
	registry.Dispatch(key, 231.0)

	assert.Equal(t, []float64{230.5, 231.0}, got1)
	assert.Equal(t, []float64{230.5, 231.0}, got2)

	// Dispatch auf unbekannten Key ist harmlos
	registry.Dispatch(types.WatchKey{AnalyzerID: "nobody"}, 1)
}

func TestSubscribeFailure(t *testing.T) {
	transport := &fakeTransport{failNext: errors.New("dial refused")}
	registry := NewRegistry(transport, zap.NewNop())

	_, err := registry.Watch("analyzer-1", testDesc(), func(float64) {})
	assert.Error(t, err)
	assert.Equal(t, 0, registry.ActiveKeys())
}

func TestDisconnectRetainsStateAndReconnectResubscribes(t *testing.T) {
	transport := &fakeTransport{}
	registry := NewRegistry(transport, zap.NewNop())
	desc := testDesc()

	id, err := registry.Watch("analyzer-1", desc, func(float64) {})
	require.NoError(t, err)
	require.Len(t, transport.subscribes, 1)

	registry.HandleDisconnect()

	// Watch während der Trennung: kein Wire-Traffic, Zustand bleibt
	_, err = registry.Watch("analyzer-1", testDescWithAddress(500), func(float64) {})
	require.NoError(t, err)
	assert.Len(t, transport.subscribes, 1)
	assert.Equal(t, 2, registry.ActiveKeys())

	// Unwatch während der Trennung sendet kein Unsubscribe
	registry.Unwatch(id)
	assert.Empty(t, transport.unsubscribes)

	registry.HandleReconnect()
	// Nur der verbliebene Key wird resubscribed
	assert.Len(t, transport.subscribes, 2)
}

func testDescWithAddress(addr uint32) types.RegisterDescriptor {
	desc := testDesc()
	desc.Address = addr
	return desc
}
