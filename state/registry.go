package state

import (
	"sync"

	"github.com/saiset-co/sai-state/types"
)

type subscription struct {
	fn      types.SubscriberFunc
	removed bool
}

// Registry holds the subscriber sets per key. Disposers are idempotent and
// reference counting is implicit: the key's entry disappears when its last
// subscriber leaves, at which point the eviction hook fires so the engine can
// drop volatile cache entries. A Notify issued while a broadcast for the same
// key is in flight is queued and delivered after the current pass instead of
// being inlined into it.
type Registry struct {
	subs    map[string][]*subscription
	active  map[string]bool
	queued  map[string][]interface{}
	mu      sync.Mutex
	onEmpty func(key string)
}

func NewRegistry(onEmpty func(key string)) *Registry {
	return &Registry{
		subs:    make(map[string][]*subscription),
		active:  make(map[string]bool),
		queued:  make(map[string][]interface{}),
		onEmpty: onEmpty,
	}
}

func (r *Registry) Subscribe(key string, fn types.SubscriberFunc) types.UnsubscribeFunc {
	if fn == nil {
		return func() {}
	}

	sub := &subscription{fn: fn}

	r.mu.Lock()
	r.subs[key] = append(r.subs[key], sub)
	r.mu.Unlock()

	return func() {
		r.unsubscribe(key, sub)
	}
}

func (r *Registry) unsubscribe(key string, sub *subscription) {
	r.mu.Lock()

	if sub.removed {
		r.mu.Unlock()
		return
	}
	sub.removed = true

	subs := r.subs[key]
	for i, s := range subs {
		if s == sub {
			r.subs[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	empty := len(r.subs[key]) == 0
	if empty {
		delete(r.subs, key)
	}
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(key)
	}
}

func (r *Registry) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs[key])
}

func (r *Registry) Notify(key string, value interface{}) {
	r.mu.Lock()
	if r.active[key] {
		r.queued[key] = append(r.queued[key], value)
		r.mu.Unlock()
		return
	}
	r.active[key] = true
	r.mu.Unlock()

	current := value

	for {
		for _, fn := range r.snapshot(key) {
			fn(current)
		}

		r.mu.Lock()
		pending := r.queued[key]
		if len(pending) == 0 {
			delete(r.active, key)
			delete(r.queued, key)
			r.mu.Unlock()
			return
		}
		current = pending[0]
		r.queued[key] = pending[1:]
		r.mu.Unlock()
	}
}

// snapshot copies the live subscriber callbacks so Notify never holds the
// lock while running them; callbacks are free to subscribe or unsubscribe.
func (r *Registry) snapshot(key string) []types.SubscriberFunc {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[key]
	if len(subs) == 0 {
		return nil
	}

	callbacks := make([]types.SubscriberFunc, 0, len(subs))
	for _, sub := range subs {
		if !sub.removed {
			callbacks = append(callbacks, sub.fn)
		}
	}
	return callbacks
}
