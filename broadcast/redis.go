package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/types"
	"github.com/saiset-co/sai-state/utils"
)

type RedisBroadcastConfig struct {
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	Channel     string        `json:"channel"`
	DialTimeout time.Duration `json:"dial_timeout"`
}

// RedisBroadcaster relays change signals over a redis pub/sub channel shared
// by every context of the application.
type RedisBroadcaster struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	config   *RedisBroadcastConfig
	client   *redis.Client
	pubsub   *redis.PubSub
	handlers []types.SignalHandler
	mu       sync.RWMutex
	state    atomic.Value
	readDone chan struct{}
}

func NewRedisBroadcaster(ctx context.Context, logger types.Logger, config *types.BroadcastConfig) (types.Broadcaster, error) {
	redisConfig := &RedisBroadcastConfig{
		Host:        "localhost",
		Port:        6379,
		Password:    "",
		DB:          0,
		Channel:     "sai-state:signals",
		DialTimeout: 5 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis broadcast config")
		}
	}

	broadcasterCtx, cancel := context.WithCancel(ctx)

	rb := &RedisBroadcaster{
		ctx:      broadcasterCtx,
		cancel:   cancel,
		logger:   logger,
		config:   redisConfig,
		handlers: make([]types.SignalHandler, 0, 2),
		readDone: make(chan struct{}),
	}

	rb.client = redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:    redisConfig.Password,
		DB:          redisConfig.DB,
		DialTimeout: redisConfig.DialTimeout,
	})

	if err := rb.client.Ping(broadcasterCtx).Err(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	rb.state.Store(StateStopped)
	return rb, nil
}

func (r *RedisBroadcaster) Publish(signal *types.ChangeSignal) error {
	if !r.IsRunning() {
		return types.ErrBroadcastNotConnected
	}

	data, err := utils.Marshal(signal)
	if err != nil {
		return types.WrapError(err, "failed to marshal signal")
	}

	if err := r.client.Publish(r.ctx, r.config.Channel, data).Err(); err != nil {
		return types.WrapError(err, "failed to publish signal")
	}

	return nil
}

func (r *RedisBroadcaster) Subscribe(handler types.SignalHandler) error {
	if handler == nil {
		return types.ErrSubscriberIsNil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
	return nil
}

func (r *RedisBroadcaster) Start() error {
	if !r.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if r.getState() == StateStarting {
			r.setState(StateRunning)
		}
	}()

	r.pubsub = r.client.Subscribe(r.ctx, r.config.Channel)

	if _, err := r.pubsub.Receive(r.ctx); err != nil {
		r.setState(StateStopped)
		return types.WrapError(err, "failed to subscribe to channel")
	}

	go r.readLoop()

	r.logger.Info("Redis broadcaster started",
		zap.String("channel", r.config.Channel))
	return nil
}

func (r *RedisBroadcaster) Stop() error {
	if !r.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		r.setState(StateStopped)
		r.cancel()
	}()

	if err := r.pubsub.Close(); err != nil {
		r.logger.Error("Failed to close pubsub", zap.Error(err))
	}

	select {
	case <-r.readDone:
	case <-time.After(5 * time.Second):
		r.logger.Warn("Read loop stop timeout")
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis broadcaster stopped gracefully")
	return nil
}

func (r *RedisBroadcaster) IsRunning() bool {
	return r.getState() == StateRunning
}

func (r *RedisBroadcaster) readLoop() {
	defer close(r.readDone)

	ch := r.pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var signal types.ChangeSignal
			if err := utils.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				r.logger.Error("Failed to unmarshal signal, dropping",
					zap.Error(err))
				continue
			}

			r.deliver(&signal)
		}
	}
}

func (r *RedisBroadcaster) deliver(signal *types.ChangeSignal) {
	r.mu.RLock()
	handlers := make([]types.SignalHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(signal)
	}
}

func (r *RedisBroadcaster) getState() State {
	return r.state.Load().(State)
}

func (r *RedisBroadcaster) setState(newState State) bool {
	currentState := r.getState()
	return r.state.CompareAndSwap(currentState, newState)
}

func (r *RedisBroadcaster) transitionState(from, to State) bool {
	return r.state.CompareAndSwap(from, to)
}
