package types

import (
	"time"
)

// StateEngine is the public contract of the synchronization engine. Observers
// resolve a key to its current shared value and receive change notifications
// until they dispose their subscription. Values returned by the engine are
// never nil: resolution falls back to the supplied initial value and then to a
// shape-appropriate empty default.
type StateEngine interface {
	LifecycleManager
	ResolveAndSubscribe(key string, subscriber SubscriberFunc, initial ...interface{}) (interface{}, Setter, UnsubscribeFunc)
	Resolve(key string, initial ...interface{}) interface{}
	Set(key string, update Update)
	Delete(key string)
	Keys() []string
	OnReady(fn func())
	Ready()
	HandleSignal(signal *ChangeSignal)
}

// SubscriberFunc receives the new value after every update of the observed key.
type SubscriberFunc func(value interface{})

// Setter applies an update to the key the observer resolved.
type Setter func(update Update)

// UnsubscribeFunc disposes a subscription. Calling it more than once is a no-op.
type UnsubscribeFunc func()

// Update is a tagged variant: either a literal replacement value or a function
// of the previous value. The zero Update replaces the value with nil, which the
// engine resolves to the safe default.
type Update struct {
	value   interface{}
	compute func(prev interface{}) interface{}
}

func Replace(value interface{}) Update {
	return Update{value: value}
}

func Compute(fn func(prev interface{}) interface{}) Update {
	return Update{compute: fn}
}

func (u Update) Apply(prev interface{}) interface{} {
	if u.compute != nil {
		return u.compute(prev)
	}
	return u.value
}

// DurableStore is the error-isolated adapter over a textual key-value backend.
// Keys carry the persistent sentinel ("@user"); the adapter owns namespacing
// and never propagates backend failures: Get degrades to absent, Set and
// Remove degrade to logged no-ops.
type DurableStore interface {
	LifecycleManager
	Get(key string) (string, bool)
	Set(key string, value string)
	Remove(key string)
}

// StoreBackend is a raw backend behind the DurableStore adapter. Backends see
// fully namespaced keys and are allowed to fail; the adapter isolates them.
type StoreBackend interface {
	LifecycleManager
	Get(key string) (string, error)
	Set(key string, value string) error
	Remove(key string) error
}

type StoreBackendCreator func(config interface{}) (StoreBackend, error)

// ChangeSignal is the cross-context notification emitted after a durable
// write. Key is the namespaced store key, Value the serialized payload.
type ChangeSignal struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Origin    string    `json:"origin"`
	SignalID  string    `json:"signal_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster delivers change signals between execution contexts sharing the
// same durable store.
type Broadcaster interface {
	LifecycleManager
	Publish(signal *ChangeSignal) error
	Subscribe(handler SignalHandler) error
}

type SignalHandler func(signal *ChangeSignal)

type BroadcasterCreator func(config interface{}) (Broadcaster, error)
