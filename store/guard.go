package store

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/types"
)

// GuardedStore is the durable store adapter handed to the engine. Every
// operation is total: backend failures degrade to absent reads and logged
// no-op writes, so durability loss never breaks in-memory behavior. A
// successful write additionally publishes a change signal so sibling contexts
// observe the new record.
type GuardedStore struct {
	logger      types.Logger
	backend     types.StoreBackend
	broadcaster types.Broadcaster
	namespace   string
	prefix      string
	origin      string
}

func NewGuardedStore(logger types.Logger, backend types.StoreBackend, broadcaster types.Broadcaster, namespace, prefix, origin string) types.DurableStore {
	return &GuardedStore{
		logger:      logger,
		backend:     backend,
		broadcaster: broadcaster,
		namespace:   namespace,
		prefix:      prefix,
		origin:      origin,
	}
}

func (g *GuardedStore) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	value, err := g.backend.Get(NamespaceKey(g.namespace, g.prefix, key))
	if err != nil {
		if !types.IsError(err, types.ErrStoreKeyNotFound) {
			g.logger.Debug("Durable read failed, treating as absent",
				zap.String("key", key),
				zap.Error(err))
		}
		return "", false
	}

	return value, true
}

func (g *GuardedStore) Set(key string, value string) {
	if key == "" {
		return
	}

	recordKey := NamespaceKey(g.namespace, g.prefix, key)

	if err := g.backend.Set(recordKey, value); err != nil {
		g.logger.Warn("Durable write failed, value kept in memory only",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	g.emitSignal(recordKey, value)
}

func (g *GuardedStore) Remove(key string) {
	if key == "" {
		return
	}

	if err := g.backend.Remove(NamespaceKey(g.namespace, g.prefix, key)); err != nil {
		g.logger.Warn("Durable remove failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (g *GuardedStore) Start() error {
	return g.backend.Start()
}

func (g *GuardedStore) Stop() error {
	return g.backend.Stop()
}

func (g *GuardedStore) IsRunning() bool {
	return g.backend.IsRunning()
}

func (g *GuardedStore) emitSignal(recordKey, value string) {
	if g.broadcaster == nil {
		return
	}

	signal := &types.ChangeSignal{
		Key:       recordKey,
		Value:     value,
		Origin:    g.origin,
		SignalID:  uuid.New().String(),
		Timestamp: time.Now(),
	}

	if err := g.broadcaster.Publish(signal); err != nil {
		g.logger.Warn("Change signal publish failed, sibling contexts will not observe this write",
			zap.String("key", recordKey),
			zap.Error(err))
	}
}
