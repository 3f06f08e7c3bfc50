package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrStoreIsDisabled      = errors.New("durable store is disabled")
	ErrStoreTypeUnknown     = errors.New("durable store type unknown")
	ErrStoreKeyNotFound     = errors.New("durable store key not found")
	ErrStoreKeyEmpty        = errors.New("durable store key empty")
	ErrStoreUnavailable     = errors.New("durable store unavailable")
	ErrStoreWriteFailed     = errors.New("durable store write failed")
	ErrStoreConnectionLost  = errors.New("durable store connection lost")
	ErrStoreOperationFailed = errors.New("durable store operation failed")
)

var (
	ErrBroadcastIsDisabled    = errors.New("broadcaster is disabled")
	ErrBroadcastTypeUnknown   = errors.New("broadcaster type unknown")
	ErrBroadcastNotConnected  = errors.New("broadcaster not connected")
	ErrBroadcastPublishFailed = errors.New("broadcast publish failed")
	ErrSignalMalformed        = errors.New("change signal malformed")
)

var (
	ErrEngineKeyEmpty       = errors.New("state key empty")
	ErrEngineNotRunning     = errors.New("state engine not running")
	ErrSubscriberIsNil      = errors.New("subscriber is nil")
	ErrUpdateIsEmpty        = errors.New("update carries neither value nor function")
	ErrValueNotSerializable = errors.New("value not serializable")
)

var (
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
)

var (
	ErrHealthCheckFailed = errors.New("health check failed")
)

var (
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrServerAlreadyRunning = errors.New("component already running")
	ErrServerNotRunning     = errors.New("component not running")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
