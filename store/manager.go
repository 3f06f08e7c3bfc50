package store

import (
	"context"

	"github.com/saiset-co/sai-state/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customStoreCreators = make(map[string]types.StoreBackendCreator)

func RegisterStoreBackend(storeType string, creator types.StoreBackendCreator) {
	customStoreCreators[storeType] = creator
}

// NewDurableStore builds the configured backend and wraps it in the
// error-isolating adapter. The origin identifies this execution context in
// outgoing change signals so it can ignore its own writes.
func NewDurableStore(ctx context.Context, config types.ConfigManager, logger types.Logger, broadcaster types.Broadcaster, health types.HealthManager, origin string) (types.DurableStore, error) {
	storeConfig := config.GetConfig().Store

	if storeConfig == nil || !storeConfig.Enabled {
		return nil, types.ErrStoreIsDisabled
	}

	// The engine section is optional in the config file; fall back to the
	// same defaults the engine itself applies.
	engineConfig := config.GetConfig().Engine.WithDefaults()

	var backend types.StoreBackend
	var err error

	switch storeConfig.Type {
	case "memory":
		backend, err = NewMemoryStore(ctx, logger, storeConfig)
	case "clover":
		backend, err = NewCloverStore(ctx, logger, storeConfig)
	case "redis":
		backend, err = NewRedisStore(ctx, logger, storeConfig)
	default:
		if creator, exists := customStoreCreators[storeConfig.Type]; exists {
			backend, err = creator(storeConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeConfig.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if health != nil {
		registerHealthChecker(health, backend, storeConfig.Type)
	}

	return NewGuardedStore(logger, backend, broadcaster, engineConfig.Namespace, engineConfig.PersistentPrefix, origin), nil
}
