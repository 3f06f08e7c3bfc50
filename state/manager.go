package state

import (
	"context"
	"time"

	"github.com/saiset-co/sai-state/types"
)

// NewStateEngine builds the engine from the loaded configuration and wraps it
// with metrics instrumentation. The durable store and broadcaster are
// optional: passing nil disables durable resolution or cross-context signals
// respectively.
func NewStateEngine(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, durable types.DurableStore, broadcaster types.Broadcaster, origin string) (types.StateEngine, error) {
	engineConfig := config.GetConfig().Engine

	impl, err := NewEngine(ctx, logger, engineConfig, durable, broadcaster, origin)
	if err != nil {
		return nil, err
	}

	return newInstrumentedStateEngine(logger, metrics, impl), nil
}

type instrumentedStateEngine struct {
	impl    *Engine
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedStateEngine(logger types.Logger, metrics types.MetricsManager, impl *Engine) types.StateEngine {
	instrumented := &instrumentedStateEngine{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	return instrumented
}

func (ise *instrumentedStateEngine) ResolveAndSubscribe(key string, subscriber types.SubscriberFunc, initial ...interface{}) (interface{}, types.Setter, types.UnsubscribeFunc) {
	start := time.Now()
	value, setter, unsubscribe := ise.impl.ResolveAndSubscribe(key, subscriber, initial...)
	ise.recordMetric("resolve_and_subscribe", "success", time.Since(start))

	return value, setter, unsubscribe
}

func (ise *instrumentedStateEngine) Resolve(key string, initial ...interface{}) interface{} {
	start := time.Now()
	value := ise.impl.Resolve(key, initial...)
	ise.recordMetric("resolve", "success", time.Since(start))

	return value
}

func (ise *instrumentedStateEngine) Set(key string, update types.Update) {
	start := time.Now()
	ise.impl.Set(key, update)
	ise.recordMetric("set", "success", time.Since(start))
}

func (ise *instrumentedStateEngine) Delete(key string) {
	start := time.Now()
	ise.impl.Delete(key)
	ise.recordMetric("delete", "success", time.Since(start))
}

func (ise *instrumentedStateEngine) Keys() []string {
	return ise.impl.Keys()
}

func (ise *instrumentedStateEngine) OnReady(fn func()) {
	ise.impl.OnReady(fn)
}

func (ise *instrumentedStateEngine) Ready() {
	ise.impl.Ready()
}

func (ise *instrumentedStateEngine) HandleSignal(signal *types.ChangeSignal) {
	start := time.Now()
	ise.impl.HandleSignal(signal)
	ise.recordMetric("handle_signal", "success", time.Since(start))
}

func (ise *instrumentedStateEngine) Start() error {
	start := time.Now()
	err := ise.impl.Start()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ise.recordMetric("start", result, duration)

	return err
}

func (ise *instrumentedStateEngine) Stop() error {
	return ise.impl.Stop()
}

func (ise *instrumentedStateEngine) IsRunning() bool {
	return ise.impl.IsRunning()
}

func (ise *instrumentedStateEngine) recordMetric(operation, result string, duration time.Duration) {
	opCounter := ise.metrics.Counter("state_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := ise.metrics.Histogram("state_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
