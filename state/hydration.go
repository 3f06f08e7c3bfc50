package state

import (
	"sync"
)

type GateState int32

const (
	GatePending GateState = iota
	GateReady
)

// HydrationGate defers durable reads until the host application finishes its
// first activation. The gate starts Pending with a callback queue and
// transitions to Ready exactly once; callbacks registered while Pending run
// in registration order on the transition, callbacks registered after it run
// synchronously.
type HydrationGate struct {
	state GateState
	queue []func()
	mu    sync.Mutex
}

func NewHydrationGate() *HydrationGate {
	return &HydrationGate{state: GatePending}
}

func (g *HydrationGate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state == GateReady
}

func (g *HydrationGate) OnReady(fn func()) {
	if fn == nil {
		return
	}

	g.mu.Lock()
	if g.state == GatePending {
		g.queue = append(g.queue, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	fn()
}

// Flip performs the single Pending -> Ready transition and drains the queue
// in registration order. Reports false when the gate was already Ready.
// Callbacks run outside the lock, so a callback registering another callback
// sees the gate Ready and runs it inline.
func (g *HydrationGate) Flip() bool {
	g.mu.Lock()
	if g.state == GateReady {
		g.mu.Unlock()
		return false
	}

	g.state = GateReady
	queue := g.queue
	g.queue = nil
	g.mu.Unlock()

	for _, fn := range queue {
		fn()
	}

	return true
}
