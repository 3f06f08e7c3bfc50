package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/types"
)

// MemoryBus delivers change signals inside a single process. Sharing one bus
// between several engine instances makes those instances behave like sibling
// contexts, which is how the cross-context protocol is exercised in tests.
type MemoryBus struct {
	logger   types.Logger
	handlers []types.SignalHandler
	mu       sync.RWMutex
	started  int32
}

func NewMemoryBus(ctx context.Context, logger types.Logger, config *types.BroadcastConfig) (types.Broadcaster, error) {
	return &MemoryBus{
		logger:   logger,
		handlers: make([]types.SignalHandler, 0, 2),
	}, nil
}

func (b *MemoryBus) Publish(signal *types.ChangeSignal) error {
	if signal == nil {
		return types.ErrSignalMalformed
	}

	b.mu.RLock()
	handlers := make([]types.SignalHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(signal)
	}

	b.logger.Debug("Signal delivered",
		zap.String("key", signal.Key),
		zap.Int("handlers", len(handlers)))

	return nil
}

func (b *MemoryBus) Subscribe(handler types.SignalHandler) error {
	if handler == nil {
		return types.ErrSubscriberIsNil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, handler)
	return nil
}

func (b *MemoryBus) Start() error {
	if !atomic.CompareAndSwapInt32(&b.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (b *MemoryBus) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()

	return nil
}

func (b *MemoryBus) IsRunning() bool {
	return atomic.LoadInt32(&b.started) == 1
}
