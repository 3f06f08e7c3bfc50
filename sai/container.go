package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-state/broadcast"
	"github.com/saiset-co/sai-state/logger"
	"github.com/saiset-co/sai-state/metrics"
	"github.com/saiset-co/sai-state/store"
	"github.com/saiset-co/sai-state/types"
)

type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Health      atomic.Pointer[types.HealthManager]
	Store       atomic.Pointer[types.DurableStore]
	Broadcaster atomic.Pointer[types.Broadcaster]
	State       atomic.Pointer[types.StateEngine]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Metrics() types.MetricsManager {
	if ptr := globalContainer.Metrics.Load(); ptr != nil {
		return *ptr
	}
	panic("MetricsManager not initialized")
}

func Health() types.HealthManager {
	if ptr := globalContainer.Health.Load(); ptr != nil {
		return *ptr
	}
	panic("HealthManager not initialized")
}

func Store() types.DurableStore {
	if ptr := globalContainer.Store.Load(); ptr != nil {
		return *ptr
	}
	panic("DurableStore not initialized")
}

func Broadcaster() types.Broadcaster {
	if ptr := globalContainer.Broadcaster.Load(); ptr != nil {
		return *ptr
	}
	panic("Broadcaster not initialized")
}

func State() types.StateEngine {
	if ptr := globalContainer.State.Load(); ptr != nil {
		return *ptr
	}
	panic("StateEngine not initialized")
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterStoreBackend(storeBackendName string, creator types.StoreBackendCreator) {
	store.RegisterStoreBackend(storeBackendName, creator)
}

func RegisterBroadcaster(broadcasterName string, creator types.BroadcasterCreator) {
	broadcast.RegisterBroadcaster(broadcasterName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetStore(durable types.DurableStore) {
	fc.Store.Store(&durable)
}

func (fc *Container) SetBroadcaster(broadcaster types.Broadcaster) {
	fc.Broadcaster.Store(&broadcaster)
}

func (fc *Container) SetState(engine types.StateEngine) {
	fc.State.Store(&engine)
}
