package store

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/types"
)

// MemoryStore keeps durable records in process memory. It exists for tests
// and for deployments that want namespacing and signaling without a real
// backend; records do not survive the process.
type MemoryStore struct {
	records map[string]string
	mu      sync.RWMutex
	logger  types.Logger
	state   atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.StoreBackend, error) {
	ms := &MemoryStore{
		records: make(map[string]string),
		logger:  logger,
	}

	ms.state.Store(StateStopped)
	return ms, nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mu.Lock()
	cleared := len(m.records)
	m.records = make(map[string]string)
	m.mu.Unlock()

	m.logger.Info("Memory store stopped", zap.Int("cleared_records", cleared))
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.records[key]
	if !exists {
		return "", types.ErrStoreKeyNotFound
	}

	return value, nil
}

func (m *MemoryStore) Set(key string, value string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *MemoryStore) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryStore) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
