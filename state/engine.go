package state

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/codec"
	"github.com/saiset-co/sai-state/store"
	"github.com/saiset-co/sai-state/types"
)

const (
	DefaultPersistentPrefix = types.DefaultPersistentPrefix
	DefaultNamespace        = types.DefaultNamespace
)

type EngineState int32

const (
	EngineStateStopped EngineState = iota
	EngineStateStarting
	EngineStateRunning
	EngineStateStopping
)

type notification struct {
	key     string
	value   interface{}
	persist bool
	encoded string
}

// Engine composes the shared cache, subscription registry, hydration gate,
// durable store adapter and broadcaster into the public synchronization
// contract. Keys starting with the persistent prefix write through to the
// durable store and are broadcast to sibling contexts; all other keys live
// in memory only.
//
// Every update runs the same sequence: cache write, durable write-through,
// subscriber notification. Notifications are delivered through a single
// in-flight drain loop, so an update issued from inside a subscriber callback
// is queued for the next turn instead of being inlined, and subscribers of a
// key observe its updates in the order they were produced.
type Engine struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	config         *types.EngineConfig
	store          types.DurableStore
	broadcaster    types.Broadcaster
	cache          *SharedCache
	registry       *Registry
	gate           *HydrationGate
	origin         string
	mu             sync.Mutex
	notifyQueue    []notification
	notifying      bool
	deferred       map[string]struct{}
	deferredMu     sync.Mutex
	state          atomic.Value
	signalsApplied uint64
	signalsDropped uint64
}

type EngineStats struct {
	CacheHits      uint64 `json:"cache_hits"`
	CacheMisses    uint64 `json:"cache_misses"`
	SignalsApplied uint64 `json:"signals_applied"`
	SignalsDropped uint64 `json:"signals_dropped"`
}

// NewEngine builds the engine. The origin identifies this execution context
// in outgoing change signals; it must match the origin the durable store
// adapter stamps on the signals it emits, so the engine can ignore its own
// writes echoing back. Empty origin generates a fresh one.
func NewEngine(ctx context.Context, logger types.Logger, config *types.EngineConfig, durable types.DurableStore, broadcaster types.Broadcaster, origin string) (*Engine, error) {
	config = config.WithDefaults()
	if origin == "" {
		origin = uuid.New().String()
	}

	engineCtx, cancel := context.WithCancel(ctx)

	e := &Engine{
		ctx:         engineCtx,
		cancel:      cancel,
		logger:      logger,
		config:      config,
		store:       durable,
		broadcaster: broadcaster,
		cache:       NewSharedCache(),
		gate:        NewHydrationGate(),
		origin:      origin,
		deferred:    make(map[string]struct{}),
	}

	// Volatile keys leave the cache with their last subscriber; persistent
	// keys stay so durable data survives with no live observers.
	e.registry = NewRegistry(func(key string) {
		if !e.IsPersistent(key) {
			e.cache.Delete(key)
		}
	})

	e.state.Store(EngineStateStopped)

	return e, nil
}

func (e *Engine) Start() error {
	if !e.transitionState(EngineStateStopped, EngineStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if e.getState() == EngineStateStarting {
			e.setState(EngineStateRunning)
		}
	}()

	if e.broadcaster != nil {
		if err := e.broadcaster.Subscribe(e.HandleSignal); err != nil {
			e.setState(EngineStateStopped)
			return types.WrapError(err, "failed to subscribe to change signals")
		}
	}

	e.logger.Info("State engine started",
		zap.String("origin", e.origin),
		zap.String("namespace", e.config.Namespace),
		zap.Bool("durable", e.store != nil),
		zap.Bool("broadcast", e.broadcaster != nil))

	return nil
}

func (e *Engine) Stop() error {
	if !e.transitionState(EngineStateRunning, EngineStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		e.setState(EngineStateStopped)
	}()

	e.cancel()

	e.logger.Info("State engine stopped gracefully")
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.getState() == EngineStateRunning
}

// ResolveAndSubscribe resolves the key's current value and registers the
// subscriber for every subsequent update of that key. The returned value is
// never nil. The disposer is idempotent and must be called once when the
// observer goes away.
func (e *Engine) ResolveAndSubscribe(key string, subscriber types.SubscriberFunc, initial ...interface{}) (interface{}, types.Setter, types.UnsubscribeFunc) {
	value := e.Resolve(key, initial...)

	unsubscribe := types.UnsubscribeFunc(func() {})
	if subscriber != nil {
		unsubscribe = e.registry.Subscribe(key, subscriber)
	}

	setter := types.Setter(func(update types.Update) {
		e.Set(key, update)
	})

	return value, setter, unsubscribe
}

// Resolve returns the key's current value: cache entry first, then the
// durable record (persistent keys, once the hydration gate is ready), then
// the initial value, then the safe default. Whatever wins becomes the cache
// entry, so later resolutions of the key observe the same value.
func (e *Engine) Resolve(key string, initial ...interface{}) interface{} {
	var init interface{}
	if len(initial) > 0 {
		init = initial[0]
	}

	value, encoded, writeThrough := e.resolveLocked(key, init)

	// The durable write happens after the lock is released, same as the
	// drain loop, so a broadcaster that delivers synchronously can re-enter
	// the engine without deadlocking.
	if writeThrough {
		e.store.Set(key, encoded)
	}

	return value
}

func (e *Engine) resolveLocked(key string, init interface{}) (interface{}, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if value, ok := e.cache.Get(key); ok {
		return value, "", false
	}

	persistent := e.IsPersistent(key)

	if persistent && e.store != nil {
		if e.gate.IsReady() {
			if text, ok := e.store.Get(key); ok {
				if value, err := codec.Decode(text); err == nil && !isAbsent(value) {
					e.cache.Set(key, value)
					return value, "", false
				}
			}
		} else {
			// Durable reads are unsafe until first activation completes;
			// remember the key and reconcile once the gate flips.
			e.markDeferred(key)
		}
	}

	if !isAbsent(init) {
		e.cache.Set(key, init)
		if persistent && e.store != nil && e.gate.IsReady() {
			return init, codec.Encode(init), true
		}
		return init, "", false
	}

	value := WithDefault(nil, init)
	e.cache.Set(key, value)
	return value, "", false
}

// Set computes the new value from the update, writes the cache entry, writes
// through to the durable store for persistent keys and notifies every
// subscriber of the key. Durable or broadcast failure never rolls back the
// cache write.
func (e *Engine) Set(key string, update types.Update) {
	if key == "" {
		return
	}

	e.mu.Lock()
	prev, _ := e.cache.Get(key)
	next := WithDefault(update.Apply(prev), nil)
	e.enqueueLocked(key, next, e.IsPersistent(key))
	e.drainOrReleaseLocked()
}

func (e *Engine) Delete(key string) {
	e.mu.Lock()
	e.cache.Delete(key)
	e.mu.Unlock()

	if e.IsPersistent(key) && e.store != nil {
		e.store.Remove(key)
	}
}

func (e *Engine) Keys() []string {
	return e.cache.Keys()
}

func (e *Engine) OnReady(fn func()) {
	e.gate.OnReady(fn)
}

// Ready flips the hydration gate: queued OnReady callbacks drain first, then
// every persistent key resolved before the flip is re-read from the durable
// store and, where the stored value differs from the cached one, corrected
// and broadcast to local subscribers. The reconciliation runs once.
func (e *Engine) Ready() {
	if !e.gate.Flip() {
		return
	}

	e.reconcile()
}

// HandleSignal applies a change signal from a sibling context. Signals from
// this context, signals outside the namespace, signals for keys with no
// cache entry and payloads that fail to decode are dropped; everything else
// is applied exactly like a local update, minus the durable write the
// sibling already performed.
func (e *Engine) HandleSignal(signal *types.ChangeSignal) {
	if signal == nil || signal.Origin == e.origin {
		return
	}

	key, ok := store.DenamespaceKey(e.config.Namespace, e.config.PersistentPrefix, signal.Key)
	if !ok {
		atomic.AddUint64(&e.signalsDropped, 1)
		return
	}

	if !e.cache.Has(key) {
		atomic.AddUint64(&e.signalsDropped, 1)
		e.logger.Debug("Signal ignored, no cache entry",
			zap.String("key", key),
			zap.String("signal_id", signal.SignalID))
		return
	}

	value, err := codec.Decode(signal.Value)
	if err != nil {
		atomic.AddUint64(&e.signalsDropped, 1)
		e.logger.Warn("Signal payload failed to decode, dropping",
			zap.String("key", key),
			zap.String("signal_id", signal.SignalID),
			zap.Error(err))
		return
	}

	e.mu.Lock()
	e.enqueueLocked(key, WithDefault(value, nil), false)
	e.drainOrReleaseLocked()

	atomic.AddUint64(&e.signalsApplied, 1)
}

func (e *Engine) IsPersistent(key string) bool {
	return strings.HasPrefix(key, e.config.PersistentPrefix)
}

func (e *Engine) Origin() string {
	return e.origin
}

func (e *Engine) Stats() EngineStats {
	hits, misses := e.cache.Stats()
	return EngineStats{
		CacheHits:      hits,
		CacheMisses:    misses,
		SignalsApplied: atomic.LoadUint64(&e.signalsApplied),
		SignalsDropped: atomic.LoadUint64(&e.signalsDropped),
	}
}

// enqueueLocked writes the cache entry and queues its notification. Callers
// hold e.mu and follow with drainOrReleaseLocked.
func (e *Engine) enqueueLocked(key string, value interface{}, persist bool) {
	e.cache.Set(key, value)

	n := notification{key: key, value: value}
	if persist && e.store != nil {
		n.persist = true
		n.encoded = codec.Encode(value)
	}

	e.notifyQueue = append(e.notifyQueue, n)
}

// drainOrReleaseLocked releases e.mu and, unless another drain is already in
// flight, delivers queued notifications in order. Updates issued from inside
// subscriber callbacks re-enter through Set, find the drain active and leave
// their notification queued for this loop.
func (e *Engine) drainOrReleaseLocked() {
	if e.notifying {
		e.mu.Unlock()
		return
	}
	e.notifying = true
	e.mu.Unlock()

	for {
		e.mu.Lock()
		if len(e.notifyQueue) == 0 {
			e.notifying = false
			e.mu.Unlock()
			return
		}
		n := e.notifyQueue[0]
		e.notifyQueue = e.notifyQueue[1:]
		e.mu.Unlock()

		if n.persist {
			e.store.Set(n.key, n.encoded)
		}

		e.registry.Notify(n.key, n.value)
	}
}

func (e *Engine) markDeferred(key string) {
	e.deferredMu.Lock()
	defer e.deferredMu.Unlock()

	e.deferred[key] = struct{}{}
}

func (e *Engine) reconcile() {
	if e.store == nil {
		return
	}

	e.deferredMu.Lock()
	keys := make([]string, 0, len(e.deferred))
	for key := range e.deferred {
		keys = append(keys, key)
	}
	e.deferred = make(map[string]struct{})
	e.deferredMu.Unlock()

	for _, key := range keys {
		text, ok := e.store.Get(key)
		if !ok {
			continue
		}

		value, err := codec.Decode(text)
		if err != nil || isAbsent(value) {
			continue
		}

		e.mu.Lock()
		cached, _ := e.cache.Get(key)
		if reflect.DeepEqual(cached, value) {
			e.mu.Unlock()
			continue
		}

		e.enqueueLocked(key, value, false)
		e.drainOrReleaseLocked()

		e.logger.Debug("Reconciled key from durable store", zap.String("key", key))
	}
}

func (e *Engine) getState() EngineState {
	return e.state.Load().(EngineState)
}

func (e *Engine) setState(newState EngineState) bool {
	currentState := e.getState()
	return e.state.CompareAndSwap(currentState, newState)
}

func (e *Engine) transitionState(from, to EngineState) bool {
	return e.state.CompareAndSwap(from, to)
}
