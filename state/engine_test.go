package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/broadcast"
	"github.com/saiset-co/sai-state/codec"
	"github.com/saiset-co/sai-state/logger"
	"github.com/saiset-co/sai-state/store"
	"github.com/saiset-co/sai-state/types"
)

type fakeDurableStore struct {
	records map[string]string
	mu      sync.Mutex
	gets    int
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{records: make(map[string]string)}
}

func (f *fakeDurableStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	value, ok := f.records[key]
	return value, ok
}

func (f *fakeDurableStore) Set(key string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records[key] = value
}

func (f *fakeDurableStore) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.records, key)
}

func (f *fakeDurableStore) Start() error    { return nil }
func (f *fakeDurableStore) Stop() error     { return nil }
func (f *fakeDurableStore) IsRunning() bool { return true }

func (f *fakeDurableStore) record(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.records[key]
	return value, ok
}

// reentrantStore calls back into the test after every write, standing in for
// a store whose broadcaster delivers signals on the publishing goroutine.
type reentrantStore struct {
	*fakeDurableStore
	onSet func(key string)
}

func (r *reentrantStore) Set(key, value string) {
	r.fakeDurableStore.Set(key, value)
	if r.onSet != nil {
		r.onSet(key)
	}
}

func newTestEngine(t *testing.T, durable types.DurableStore, broadcaster types.Broadcaster) *Engine {
	t.Helper()

	engine, err := NewEngine(context.Background(), logger.NewZapWrapper(zap.NewNop()), nil, durable, broadcaster, "origin-a")
	require.NoError(t, err)
	return engine
}

func TestEngineResolve(t *testing.T) {
	t.Run("returns initial value on first resolution", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		value := engine.Resolve("user", map[string]interface{}{"name": "guest"})
		assert.Equal(t, map[string]interface{}{"name": "guest"}, value)
	})

	t.Run("cache entry wins over a different initial", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("user", "first")
		value := engine.Resolve("user", "second")
		assert.Equal(t, "first", value)
	})

	t.Run("no initial falls back to empty map", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		value := engine.Resolve("missing")
		assert.Equal(t, map[string]interface{}{}, value)
	})

	t.Run("typed nil initial yields shape default", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var hint []string
		value := engine.Resolve("tags", hint)
		assert.Equal(t, []string{}, value)
	})

	t.Run("zero scalar initial is a present value", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		value := engine.Resolve("count", 0)
		assert.Equal(t, 0, value)
	})
}

func TestEngineSet(t *testing.T) {
	t.Run("replace notifies subscriber with new value", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var got []interface{}
		_, setter, unsubscribe := engine.ResolveAndSubscribe("status", func(value interface{}) {
			got = append(got, value)
		}, "draft")
		defer unsubscribe()

		setter(types.Replace("published"))

		assert.Equal(t, []interface{}{"published"}, got)
		assert.Equal(t, "published", engine.Resolve("status"))
	})

	t.Run("compute receives the previous value", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		value, setter, unsubscribe := engine.ResolveAndSubscribe("counter", nil, 10)
		defer unsubscribe()
		assert.Equal(t, 10, value)

		setter(types.Compute(func(prev interface{}) interface{} {
			return prev.(int) + 5
		}))

		assert.Equal(t, 15, engine.Resolve("counter"))
	})

	t.Run("nil replacement resolves to safe default", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("doc", "text")
		engine.Set("doc", types.Replace(nil))

		assert.Equal(t, map[string]interface{}{}, engine.Resolve("doc"))
	})

	t.Run("update from inside a callback runs after the current notification", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var order []interface{}
		_, setter, unsubscribe := engine.ResolveAndSubscribe("chain", func(value interface{}) {
			order = append(order, value)
			if value == 1 {
				engine.Set("chain", types.Replace(2))
			}
		}, 0)
		defer unsubscribe()

		setter(types.Replace(1))

		assert.Equal(t, []interface{}{1, 2}, order)
	})

	t.Run("all subscribers of the key observe the update", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var first, second interface{}
		_, setter, unsubA := engine.ResolveAndSubscribe("shared", func(value interface{}) { first = value }, 0)
		defer unsubA()
		_, _, unsubB := engine.ResolveAndSubscribe("shared", func(value interface{}) { second = value }, 0)
		defer unsubB()

		setter(types.Replace(42))

		assert.Equal(t, 42, first)
		assert.Equal(t, 42, second)
	})
}

func TestEngineSubscription(t *testing.T) {
	t.Run("unsubscribe stops notifications and is idempotent", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		calls := 0
		_, setter, unsubscribe := engine.ResolveAndSubscribe("topic", func(interface{}) { calls++ }, 0)

		setter(types.Replace(1))
		unsubscribe()
		unsubscribe()
		setter(types.Replace(2))

		assert.Equal(t, 1, calls)
	})

	t.Run("volatile entry leaves the cache with its last subscriber", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		_, _, unsubscribe := engine.ResolveAndSubscribe("session", func(interface{}) {}, "token")
		assert.True(t, engine.cache.Has("session"))

		unsubscribe()
		assert.False(t, engine.cache.Has("session"))
	})

	t.Run("persistent entry survives its last subscriber", func(t *testing.T) {
		engine := newTestEngine(t, newFakeDurableStore(), nil)
		engine.Ready()

		_, _, unsubscribe := engine.ResolveAndSubscribe("@profile", func(interface{}) {}, "data")
		unsubscribe()

		assert.True(t, engine.cache.Has("@profile"))
	})

	t.Run("entry stays while another subscriber remains", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		_, _, unsubA := engine.ResolveAndSubscribe("room", func(interface{}) {}, 1)
		_, _, unsubB := engine.ResolveAndSubscribe("room", func(interface{}) {}, 1)

		unsubA()
		assert.True(t, engine.cache.Has("room"))

		unsubB()
		assert.False(t, engine.cache.Has("room"))
	})
}

func TestEnginePersistence(t *testing.T) {
	t.Run("resolution reads the durable record once ready", func(t *testing.T) {
		durable := newFakeDurableStore()
		durable.Set("@user", codec.Encode(map[string]interface{}{"name": "stored"}))

		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		value := engine.Resolve("@user", map[string]interface{}{"name": "initial"})
		assert.Equal(t, map[string]interface{}{"name": "stored"}, value)
	})

	t.Run("set writes the encoded value through", func(t *testing.T) {
		durable := newFakeDurableStore()
		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		engine.Resolve("@user", "anon")
		engine.Set("@user", types.Replace("alice"))

		record, ok := durable.record("@user")
		require.True(t, ok)
		assert.Equal(t, `"alice"`, record)
	})

	t.Run("resolving with an initial writes through once ready", func(t *testing.T) {
		durable := newFakeDurableStore()
		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		engine.Resolve("@user", "anon")

		record, ok := durable.record("@user")
		require.True(t, ok)
		assert.Equal(t, `"anon"`, record)
	})

	t.Run("volatile keys never touch the store", func(t *testing.T) {
		durable := newFakeDurableStore()
		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		engine.Resolve("session", "token")
		engine.Set("session", types.Replace("renewed"))

		_, ok := durable.record("session")
		assert.False(t, ok)
	})

	t.Run("pre-ready resolution skips the store and uses the initial", func(t *testing.T) {
		durable := newFakeDurableStore()
		durable.Set("@user", codec.Encode("stored"))

		engine := newTestEngine(t, durable, nil)

		value := engine.Resolve("@user", "initial")
		assert.Equal(t, "initial", value)
		assert.Equal(t, 0, durable.gets)

		_, ok := durable.record("@user")
		require.True(t, ok, "pre-ready resolution must not clobber the durable record")
		assert.Equal(t, `"stored"`, mustRecord(t, durable, "@user"))
	})

	t.Run("ready reconciles deferred keys against the store", func(t *testing.T) {
		durable := newFakeDurableStore()
		durable.Set("@user", codec.Encode("stored"))

		engine := newTestEngine(t, durable, nil)

		var got []interface{}
		value, _, unsubscribe := engine.ResolveAndSubscribe("@user", func(v interface{}) {
			got = append(got, v)
		}, "initial")
		defer unsubscribe()
		assert.Equal(t, "initial", value)

		engine.Ready()

		assert.Equal(t, []interface{}{"stored"}, got)
		assert.Equal(t, "stored", engine.Resolve("@user"))
	})

	t.Run("ready skips reconciliation when values already match", func(t *testing.T) {
		durable := newFakeDurableStore()
		durable.Set("@flag", codec.Encode(true))

		engine := newTestEngine(t, durable, nil)

		calls := 0
		_, _, unsubscribe := engine.ResolveAndSubscribe("@flag", func(interface{}) { calls++ }, true)
		defer unsubscribe()

		engine.Ready()
		assert.Zero(t, calls)
	})

	t.Run("ready runs the reconciliation once", func(t *testing.T) {
		durable := newFakeDurableStore()
		durable.Set("@user", codec.Encode("stored"))

		engine := newTestEngine(t, durable, nil)

		calls := 0
		_, _, unsubscribe := engine.ResolveAndSubscribe("@user", func(interface{}) { calls++ }, "initial")
		defer unsubscribe()

		engine.Ready()
		engine.Ready()

		assert.Equal(t, 1, calls)
	})

	t.Run("write-through tolerates a synchronous signal during resolve", func(t *testing.T) {
		durable := &reentrantStore{fakeDurableStore: newFakeDurableStore()}
		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		engine.Resolve("@peer", "old")

		// A broadcaster delivering on the publishing goroutine re-enters the
		// engine while the resolve write-through is still in flight.
		durable.onSet = func(key string) {
			if key == "@user" {
				engine.HandleSignal(&types.ChangeSignal{
					Key:    store.NamespaceKey(DefaultNamespace, DefaultPersistentPrefix, "@peer"),
					Value:  codec.Encode("new"),
					Origin: "origin-b",
				})
			}
		}

		engine.Resolve("@user", "anon")

		assert.Equal(t, "new", engine.Resolve("@peer"))
		assert.Equal(t, `"anon"`, mustRecord(t, durable.fakeDurableStore, "@user"))
		assert.Equal(t, uint64(1), engine.Stats().SignalsApplied)
	})

	t.Run("delete removes cache entry and durable record", func(t *testing.T) {
		durable := newFakeDurableStore()
		engine := newTestEngine(t, durable, nil)
		engine.Ready()

		engine.Resolve("@user", "alice")
		engine.Delete("@user")

		assert.False(t, engine.cache.Has("@user"))
		_, ok := durable.record("@user")
		assert.False(t, ok)
	})
}

func TestEngineOnReady(t *testing.T) {
	t.Run("callbacks queue while pending and drain on ready", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var order []int
		engine.OnReady(func() { order = append(order, 1) })
		engine.OnReady(func() { order = append(order, 2) })
		assert.Empty(t, order)

		engine.Ready()
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("callbacks run synchronously once ready", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)
		engine.Ready()

		ran := false
		engine.OnReady(func() { ran = true })
		assert.True(t, ran)
	})
}

func TestEngineHandleSignal(t *testing.T) {
	signalFor := func(key string, value interface{}, origin string) *types.ChangeSignal {
		return &types.ChangeSignal{
			Key:       store.NamespaceKey(DefaultNamespace, DefaultPersistentPrefix, key),
			Value:     codec.Encode(value),
			Origin:    origin,
			SignalID:  "sig-1",
			Timestamp: time.Now(),
		}
	}

	t.Run("applies a foreign signal for a cached key", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var got []interface{}
		_, _, unsubscribe := engine.ResolveAndSubscribe("@user", func(v interface{}) {
			got = append(got, v)
		}, "local")
		defer unsubscribe()

		engine.HandleSignal(signalFor("@user", "remote", "origin-b"))

		assert.Equal(t, []interface{}{"remote"}, got)
		assert.Equal(t, "remote", engine.Resolve("@user"))
	})

	t.Run("ignores its own signals", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("@user", "local")
		engine.HandleSignal(signalFor("@user", "echo", "origin-a"))

		assert.Equal(t, "local", engine.Resolve("@user"))
	})

	t.Run("drops signals from another namespace", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("@user", "local")
		engine.HandleSignal(&types.ChangeSignal{
			Key:    "other@user",
			Value:  codec.Encode("remote"),
			Origin: "origin-b",
		})

		assert.Equal(t, "local", engine.Resolve("@user"))
		assert.Equal(t, uint64(1), engine.Stats().SignalsDropped)
	})

	t.Run("drops signals for keys with no cache entry", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.HandleSignal(signalFor("@unknown", "remote", "origin-b"))

		assert.False(t, engine.cache.Has("@unknown"))
		assert.Equal(t, uint64(1), engine.Stats().SignalsDropped)
	})

	t.Run("drops signals with malformed payloads", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("@user", "local")
		engine.HandleSignal(&types.ChangeSignal{
			Key:    store.NamespaceKey(DefaultNamespace, DefaultPersistentPrefix, "@user"),
			Value:  `{"broken":`,
			Origin: "origin-b",
		})

		assert.Equal(t, "local", engine.Resolve("@user"))
		assert.Equal(t, uint64(1), engine.Stats().SignalsDropped)
	})

	t.Run("replayed signal leaves the state unchanged", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		var got []interface{}
		_, _, unsubscribe := engine.ResolveAndSubscribe("@user", func(v interface{}) {
			got = append(got, v)
		}, "local")
		defer unsubscribe()

		signal := signalFor("@user", "remote", "origin-b")
		engine.HandleSignal(signal)
		engine.HandleSignal(signal)

		assert.Equal(t, "remote", engine.Resolve("@user"))
		assert.Equal(t, []interface{}{"remote", "remote"}, got)
		assert.Equal(t, uint64(2), engine.Stats().SignalsApplied)
		assert.Zero(t, engine.Stats().SignalsDropped)
	})

	t.Run("null payload resolves to safe default", func(t *testing.T) {
		engine := newTestEngine(t, nil, nil)

		engine.Resolve("@user", "local")
		engine.HandleSignal(signalFor("@user", nil, "origin-b"))

		assert.Equal(t, map[string]interface{}{}, engine.Resolve("@user"))
	})
}

func TestEngineCrossContext(t *testing.T) {
	// Two engines on one bus, each with its own memory backend, behave like
	// two processes sharing a durable store.
	nop := logger.NewZapWrapper(zap.NewNop())
	ctx := context.Background()

	bus, err := broadcast.NewMemoryBus(ctx, nop, &types.BroadcastConfig{})
	require.NoError(t, err)
	require.NoError(t, bus.Start())

	newSibling := func(origin string) *Engine {
		backend, err := store.NewMemoryStore(ctx, nop, &types.StoreConfig{})
		require.NoError(t, err)
		require.NoError(t, backend.Start())

		durable := store.NewGuardedStore(nop, backend, bus, DefaultNamespace, DefaultPersistentPrefix, origin)

		engine, err := NewEngine(ctx, nop, nil, durable, bus, origin)
		require.NoError(t, err)
		require.NoError(t, engine.Start())
		engine.Ready()
		return engine
	}

	alpha := newSibling("ctx-alpha")
	beta := newSibling("ctx-beta")

	var betaSaw []interface{}
	_, _, unsubscribe := beta.ResolveAndSubscribe("@theme", func(v interface{}) {
		betaSaw = append(betaSaw, v)
	}, "light")
	defer unsubscribe()

	// Alpha's ready-state resolve writes through, so beta observes the
	// initial write and then the update.
	alpha.Resolve("@theme", "light")
	alpha.Set("@theme", types.Replace("dark"))

	assert.Equal(t, []interface{}{"light", "dark"}, betaSaw)
	assert.Equal(t, "dark", beta.Resolve("@theme"))

	// The writes echo back over the bus but alpha ignores its own origin.
	assert.Equal(t, "dark", alpha.Resolve("@theme"))
	assert.Zero(t, alpha.Stats().SignalsApplied)
	assert.Equal(t, uint64(2), beta.Stats().SignalsApplied)
}

func TestEngineLifecycle(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	assert.False(t, engine.IsRunning())
	require.NoError(t, engine.Start())
	assert.True(t, engine.IsRunning())

	assert.Error(t, engine.Start())

	require.NoError(t, engine.Stop())
	assert.False(t, engine.IsRunning())
	assert.Error(t, engine.Stop())
}

func mustRecord(t *testing.T, durable *fakeDurableStore, key string) string {
	t.Helper()

	value, ok := durable.record(key)
	require.True(t, ok)
	return value
}
