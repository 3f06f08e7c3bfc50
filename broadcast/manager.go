package broadcast

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

var customBroadcasterCreators = make(map[string]types.BroadcasterCreator)

func RegisterBroadcaster(broadcasterType string, creator types.BroadcasterCreator) {
	customBroadcasterCreators[broadcasterType] = creator
}

func NewBroadcaster(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.Broadcaster, error) {
	broadcastConfig := config.GetConfig().Broadcast

	if broadcastConfig == nil || !broadcastConfig.Enabled {
		return nil, types.ErrBroadcastIsDisabled
	}

	switch broadcastConfig.Type {
	case "memory":
		return NewMemoryBus(ctx, logger, broadcastConfig)
	case "redis":
		return NewRedisBroadcaster(ctx, logger, broadcastConfig)
	case "websocket":
		return NewWebSocketBroadcaster(ctx, logger, broadcastConfig)
	default:
		if creator, exists := customBroadcasterCreators[broadcastConfig.Type]; exists {
			return creator(broadcastConfig.Config)
		}
		return nil, types.Errorf(types.ErrBroadcastTypeUnknown, "type: %s", broadcastConfig.Type)
	}
}
