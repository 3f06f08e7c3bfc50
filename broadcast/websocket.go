package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-state/types"
	"github.com/saiset-co/sai-state/utils"
)

type WebSocketState int32

const (
	WebSocketStateStopped WebSocketState = iota
	WebSocketStateStarting
	WebSocketStateRunning
	WebSocketStateStopping
	WebSocketStateReconnecting
)

type WebSocketConfig struct {
	URL            string        `json:"url"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	MaxRetries     int           `json:"max_retries"`
	PingInterval   time.Duration `json:"ping_interval"`
	PongWait       time.Duration `json:"pong_wait"`
	WriteWait      time.Duration `json:"write_wait"`
}

// WebSocketBroadcaster relays change signals through a websocket relay that
// fans every message out to all connected contexts. The relay is expected to
// echo messages to every peer; signals from this context come back and are
// filtered by the engine on origin.
type WebSocketBroadcaster struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	config            *WebSocketConfig
	conn              *websocket.Conn
	connMu            sync.RWMutex
	handlers          []types.SignalHandler
	handlersMu        sync.RWMutex
	send              chan *types.ChangeSignal
	reconnectCh       chan struct{}
	state             atomic.Value
	shutdownTimeout   time.Duration
	reconnectAttempts int32
}

func NewWebSocketBroadcaster(ctx context.Context, logger types.Logger, config *types.BroadcastConfig) (types.Broadcaster, error) {
	wsConfig := &WebSocketConfig{
		URL:            "ws://localhost:8081/signals",
		ReconnectDelay: 5 * time.Second,
		MaxRetries:     10,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, wsConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal websocket config")
		}
	}

	broadcasterCtx, cancel := context.WithCancel(ctx)

	wb := &WebSocketBroadcaster{
		ctx:             broadcasterCtx,
		cancel:          cancel,
		logger:          logger,
		config:          wsConfig,
		handlers:        make([]types.SignalHandler, 0, 2),
		send:            make(chan *types.ChangeSignal, 256),
		reconnectCh:     make(chan struct{}, 1),
		shutdownTimeout: 10 * time.Second,
	}

	wb.state.Store(WebSocketStateStopped)

	logger.Info("WebSocket broadcaster initialized",
		zap.String("url", wsConfig.URL),
		zap.Duration("reconnect_delay", wsConfig.ReconnectDelay),
		zap.Int("max_retries", wsConfig.MaxRetries))

	return wb, nil
}

func (w *WebSocketBroadcaster) Publish(signal *types.ChangeSignal) error {
	if !w.IsRunning() {
		return types.ErrBroadcastNotConnected
	}

	select {
	case w.send <- signal:
		w.logger.Debug("Signal queued for publishing",
			zap.String("key", signal.Key),
			zap.String("signal_id", signal.SignalID))
		return nil
	case <-w.ctx.Done():
		return types.ErrBroadcastNotConnected
	default:
		w.logger.Error("Send channel is full, dropping signal",
			zap.String("key", signal.Key),
			zap.String("signal_id", signal.SignalID))
		return types.ErrBroadcastPublishFailed
	}
}

func (w *WebSocketBroadcaster) Subscribe(handler types.SignalHandler) error {
	if handler == nil {
		return types.ErrSubscriberIsNil
	}

	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()

	w.handlers = append(w.handlers, handler)
	return nil
}

func (w *WebSocketBroadcaster) Start() error {
	if !w.transitionState(WebSocketStateStopped, WebSocketStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if w.getState() == WebSocketStateStarting {
			w.setState(WebSocketStateRunning)
		}
	}()

	if err := w.connect(); err != nil {
		w.setState(WebSocketStateStopped)
		w.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	go w.readPump()
	go w.writePump()
	go w.reconnectLoop()

	w.logger.Info("WebSocket broadcaster started successfully")
	return nil
}

func (w *WebSocketBroadcaster) Stop() error {
	if !w.transitionState(WebSocketStateRunning, WebSocketStateStopping) &&
		!w.transitionState(WebSocketStateReconnecting, WebSocketStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		w.setState(WebSocketStateStopped)
		w.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.connMu.Lock()
		defer w.connMu.Unlock()

		if w.conn != nil {
			if err := w.conn.Close(); err != nil {
				w.logger.Error("Failed to close connection", zap.Error(err))
				return err
			}
			w.conn = nil
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		default:
			close(w.send)
			close(w.reconnectCh)
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			w.logger.Warn("WebSocket broadcaster stop timeout")
		default:
			w.logger.Error("Error during broadcaster shutdown", zap.Error(err))
		}
	} else {
		w.logger.Info("WebSocket broadcaster stopped gracefully")
	}

	return nil
}

func (w *WebSocketBroadcaster) IsRunning() bool {
	state := w.getState()
	return state == WebSocketStateRunning || state == WebSocketStateReconnecting
}

func (w *WebSocketBroadcaster) getState() WebSocketState {
	return w.state.Load().(WebSocketState)
}

func (w *WebSocketBroadcaster) setState(newState WebSocketState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *WebSocketBroadcaster) transitionState(from, to WebSocketState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *WebSocketBroadcaster) connect() error {
	w.logger.Debug("Attempting to connect to signal relay",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial signal relay")
	}

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
		return nil
	})

	atomic.StoreInt32(&w.reconnectAttempts, 0)

	w.logger.Info("Connected to signal relay")
	return nil
}

func (w *WebSocketBroadcaster) reconnectLoop() {
	defer w.logger.Debug("Reconnect loop stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.reconnectCh:
			if !w.IsRunning() {
				return
			}

			if w.getState() == WebSocketStateRunning {
				w.setState(WebSocketStateReconnecting)
			}

			retryCount := atomic.LoadInt32(&w.reconnectAttempts)

			w.logger.Info("Starting reconnection attempt",
				zap.Int32("attempt", retryCount+1),
				zap.Int("max_retries", w.config.MaxRetries))

			if int(retryCount) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, stopping broadcaster")

				if w.transitionState(WebSocketStateReconnecting, WebSocketStateStopping) {
					w.cancel()
				}
				return
			}

			select {
			case <-time.After(w.config.ReconnectDelay):
			case <-w.ctx.Done():
				return
			}

			atomic.AddInt32(&w.reconnectAttempts, 1)

			if err := w.connect(); err != nil {
				w.logger.Error("Reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&w.reconnectAttempts)),
					zap.Error(err))

				w.safeReconnectTrigger()
				continue
			}

			w.setState(WebSocketStateRunning)
			w.logger.Info("Reconnected to signal relay")

			go w.readPump()
			go w.writePump()
		}
	}
}

func (w *WebSocketBroadcaster) safeReconnectTrigger() {
	select {
	case w.reconnectCh <- struct{}{}:
	case <-w.ctx.Done():
	default:
	}
}

func (w *WebSocketBroadcaster) readPump() {
	defer w.logger.Debug("Read pump stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_, messageData, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						w.logger.Debug("Relay connection closed", zap.Error(err))
					}
					return err
				}

				var signal types.ChangeSignal
				if err := utils.Unmarshal(messageData, &signal); err != nil {
					w.logger.Error("Failed to unmarshal signal, dropping", zap.Error(err))
					return nil
				}

				w.deliver(&signal)
				return nil
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketBroadcaster) writePump() {
	ticker := time.NewTicker(w.config.PingInterval)
	defer func() {
		ticker.Stop()
		w.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case signal, ok := <-w.send:
			if !ok {
				return
			}

			if !w.IsRunning() {
				w.logger.Debug("Dropping signal, broadcaster stopping",
					zap.String("key", signal.Key))
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))

				data, err := utils.Marshal(signal)
				if err != nil {
					w.logger.Error("Failed to marshal outgoing signal",
						zap.Error(err),
						zap.String("key", signal.Key))
					return nil
				}

				return conn.WriteMessage(websocket.TextMessage, data)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}

		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
				return conn.WriteMessage(websocket.PingMessage, nil)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketBroadcaster) withConnection(fn func(*websocket.Conn) error) bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	if w.conn == nil {
		return false
	}

	if err := fn(w.conn); err != nil {
		w.logger.Error("WebSocket operation failed", zap.Error(err))
		return false
	}

	return true
}

func (w *WebSocketBroadcaster) deliver(signal *types.ChangeSignal) {
	w.handlersMu.RLock()
	handlers := make([]types.SignalHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.handlersMu.RUnlock()

	if len(handlers) == 0 {
		w.logger.Debug("No handlers registered for signal",
			zap.String("key", signal.Key),
			zap.String("signal_id", signal.SignalID))
		return
	}

	for _, handler := range handlers {
		handler(signal)
	}
}
