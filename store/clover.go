package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/types"
)

const cloverCollection = "state_records"

// CloverStore persists records in an embedded CloverDB file database. An
// empty path opens an in-memory database, which is useful in tests.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *types.StoreConfig
	mu     sync.Mutex
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.StoreBackend, error) {
	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	cs := &CloverStore{
		db:     db,
		logger: logger,
		config: config,
	}

	cs.state.Store(StateStopped)
	return cs, nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	exists, err := c.db.HasCollection(cloverCollection)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := c.db.CreateCollection(cloverCollection); err != nil {
			return types.WrapError(err, "failed to create collection")
		}
	}

	c.logger.Info("Clover store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("Clover store stopped gracefully")
	return nil
}

func (c *CloverStore) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverStore) Get(key string) (string, error) {
	doc, err := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return "", types.WrapError(err, "failed to query record")
	}

	if doc == nil {
		return "", types.ErrStoreKeyNotFound
	}

	value, ok := doc.Get("value").(string)
	if !ok {
		return "", types.ErrStoreOperationFailed
	}

	return value, nil
}

func (c *CloverStore) Set(key string, value string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	// Check-then-insert must not race with a concurrent Set of the same key.
	c.mu.Lock()
	defer c.mu.Unlock()

	query := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key))

	count, err := query.Count()
	if err != nil {
		return types.WrapError(err, "failed to count records")
	}

	now := time.Now().UnixNano()

	if count > 0 {
		err = query.Update(map[string]interface{}{
			"value":   value,
			"ch_time": now,
		})
		return types.WrapError(err, "failed to update record")
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("value", value)
	doc.Set("cr_time", now)
	doc.Set("ch_time", now)

	if err := c.db.Insert(cloverCollection, doc); err != nil {
		return types.WrapError(err, "failed to insert record")
	}

	return nil
}

func (c *CloverStore) Remove(key string) error {
	err := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key)).Delete()
	return types.WrapError(err, "failed to delete record")
}

func (c *CloverStore) getState() State {
	return c.state.Load().(State)
}

func (c *CloverStore) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverStore) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
