package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transport is the bidirectional hub connection: server frames in, client
// invocations out. Satisfied by wsConn; swapped for a fake in tests.
type transport interface {
	ReadFrame(ctx context.Context) (frame, error)
	WriteInvocation(ctx context.Context, inv invocation) error
	Close(code websocket.StatusCode, reason string) error
}

// dialFunc establishes a transport to the hub, authenticating with token.
type dialFunc func(ctx context.Context, hubURL, token string) (transport, error)

// Client owns one persistent, authenticated hub connection: the chat hub or
// the unified hub. It handles connect/disconnect, retries transparently on
// transient transport loss, and feeds inbound frames to its Dispatcher.
// Event handler registrations survive reconnects: they are bound to the
// client, not to any single transport.
type Client struct {
	cfg        Config
	log        *zap.Logger
	dispatcher *Dispatcher
	dial       dialFunc
	onState    func(StateChange)

	mu         sync.Mutex
	state      ConnectionState
	connecting bool // in-flight guard: set for the duration of Connect
	conn       transport
	cancel     context.CancelFunc
}

// NewClient constructs a client for one hub endpoint. Use DefaultConfig() as
// a starting point. The connection is created lazily on the first Connect.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:   cfg,
		log:   cfg.logger().With(zap.String("hub", cfg.HubURL)),
		state: StateDisconnected,
	}
	c.dispatcher = NewDispatcher(c.log)
	c.dial = c.dialWebSocket
	return c
}

// Dispatcher returns the client's event dispatcher for generic registration.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// On registers fn for the named hub event.
func (c *Client) On(name string, fn Handler) *Subscription {
	return c.dispatcher.On(name, fn)
}

// OnReceiveMessage registers fn for pushed chat messages.
func (c *Client) OnReceiveMessage(fn func(ChatMessage)) *Subscription {
	return c.On(EventReceiveMessage, func(p any) {
		if msg, ok := p.(ChatMessage); ok {
			fn(msg)
		}
	})
}

// OnMessageHistory registers fn for history batches pushed after a join.
func (c *Client) OnMessageHistory(fn func([]ChatMessage)) *Subscription {
	return c.On(EventMessageHistory, func(p any) {
		if msgs, ok := p.([]ChatMessage); ok {
			fn(msgs)
		}
	})
}

// OnTaskUpdated registers fn for production task updates.
func (c *Client) OnTaskUpdated(fn func(TaskUpdatedEvent)) *Subscription {
	return c.On(EventTaskUpdated, func(p any) {
		if ev, ok := p.(TaskUpdatedEvent); ok {
			fn(ev)
		}
	})
}

// OnOrderStatus registers fn for order status changes.
func (c *Client) OnOrderStatus(fn func(OrderStatusEvent)) *Subscription {
	return c.On(EventOrderStatus, func(p any) {
		if ev, ok := p.(OrderStatusEvent); ok {
			fn(ev)
		}
	})
}

// OnNotification registers fn for generic notifications.
func (c *Client) OnNotification(fn func(NotificationEvent)) *Subscription {
	return c.On(EventNotification, func(p any) {
		if ev, ok := p.(NotificationEvent); ok {
			fn(ev)
		}
	})
}

// OnUserStatus registers fn for user online/offline changes.
func (c *Client) OnUserStatus(fn func(UserStatusEvent)) *Subscription {
	return c.On(EventUserStatusChanged, func(p any) {
		if ev, ok := p.(UserStatusEvent); ok {
			fn(ev)
		}
	})
}

// SetStateHandler registers fn for connection state transitions. Must be set
// before Connect.
func (c *Client) SetStateHandler(fn func(StateChange)) { c.onState = fn }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the hub and starts the supervise loop. No-op when already
// connected or when a connect is in flight. The bearer token is read from
// the TokenProvider at this moment, not cached from construction. A dial
// failure is returned to the caller with CodeConnection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	if c.cfg.HubURL == "" {
		return NewError(CodeValidation, "empty hub URL")
	}

	c.setState(StateConnecting, nil)
	conn, err := c.dial(ctx, c.cfg.HubURL, c.token())
	if err != nil {
		c.setState(StateDisconnected, err)
		return WrapError(CodeConnection, "failed to start transport", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.supervise(runCtx, conn)
	return nil
}

// Disconnect stops the active transport. Safe to call when already
// disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		// Cancelled while holding the lock so the supervise loop, which
		// checks the run context under the same lock, can never observe a
		// live context after it.
		c.cancel()
		c.cancel = nil
	}
	fire := c.setStateLocked(StateDisconnected, nil)
	c.mu.Unlock()
	fire()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// JoinRoom subscribes the connection to a logical room so the hub scopes
// pushed events to it.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return NewError(CodeValidation, "empty room id")
	}
	return c.invoke(ctx, targetJoinRoom, roomID)
}

// SendMessage publishes a chat message to a room.
func (c *Client) SendMessage(ctx context.Context, roomID string, payload SendMessagePayload) error {
	if roomID == "" {
		return NewError(CodeValidation, "empty room id")
	}
	if payload.Message == "" {
		return NewError(CodeValidation, "empty message")
	}
	payload.ChatRoomID = roomID
	return c.invoke(ctx, targetSendMessage, payload)
}

func (c *Client) invoke(ctx context.Context, target string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return NewError(CodeNotConnected, "hub connection is not established")
	}

	inv := invocation{
		Type:      frameInvocation,
		ID:        uuid.NewString(),
		Target:    target,
		Arguments: args,
	}
	if err := conn.WriteInvocation(ctx, inv); err != nil {
		return WrapError(CodeDisconnected, "invocation write failed", err)
	}
	return nil
}

func (c *Client) token() string {
	if c.cfg.TokenProvider == nil {
		return ""
	}
	return c.cfg.TokenProvider()
}

// supervise reads frames until the transport drops, then re-dials with
// exponential backoff until the run context is cancelled by Disconnect.
// Handler registrations are untouched across reconnects.
func (c *Client) supervise(ctx context.Context, conn transport) {
	for {
		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil || isExpectedDisconnect(ctx, err) {
			return
		}

		c.log.Warn("hub connection lost, reconnecting", zap.Error(err))
		c.setState(StateReconnecting, err)

		conn = c.redial(ctx)
		if conn == nil {
			return // context cancelled while backing off
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			// Disconnect won the race while the dial was in flight: the
			// fresh transport must not resurrect the connection.
			c.mu.Unlock()
			_ = conn.Close(websocket.StatusGoingAway, "client disconnect")
			return
		}
		c.conn = conn
		fire := c.setStateLocked(StateConnected, nil)
		c.mu.Unlock()
		fire()
	}
}

// redial retries the dial with exponential backoff, reading a fresh token on
// every attempt. Returns nil only when ctx is cancelled.
func (c *Client) redial(ctx context.Context) transport {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitialDelay
	bo.MaxInterval = c.cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0 // retry until cancelled

	var conn transport
	op := func() error {
		var err error
		conn, err = c.dial(ctx, c.cfg.HubURL, c.token())
		if err != nil {
			c.log.Debug("reconnect attempt failed", zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil
	}
	return conn
}

func (c *Client) readLoop(ctx context.Context, conn transport) error {
	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		c.handleFrame(f)
	}
}

// handleFrame decodes an inbound frame into its typed payload and emits it.
// Unknown targets and malformed payloads are logged and skipped; a bad frame
// must not take down the read loop.
func (c *Client) handleFrame(f frame) {
	if f.Target == "" {
		return
	}
	var arg json.RawMessage
	if len(f.Arguments) > 0 {
		arg = f.Arguments[0]
	}

	switch f.Target {
	case EventReceiveMessage:
		emitDecoded[ChatMessage](c, f.Target, arg)
	case EventMessageHistory:
		emitDecoded[[]ChatMessage](c, f.Target, arg)
	case EventTaskUpdated:
		emitDecoded[TaskUpdatedEvent](c, f.Target, arg)
	case EventOrderStatus:
		emitDecoded[OrderStatusEvent](c, f.Target, arg)
	case EventNotification:
		emitDecoded[NotificationEvent](c, f.Target, arg)
	case EventUserStatusChanged:
		emitDecoded[UserStatusEvent](c, f.Target, arg)
	default:
		c.log.Debug("unhandled hub event", zap.String("target", f.Target))
	}
}

func emitDecoded[T any](c *Client, target string, arg json.RawMessage) {
	var v T
	if err := UnmarshalData(arg, &v); err != nil {
		c.log.Warn("failed to decode hub event",
			zap.String("target", target), zap.Error(err))
		return
	}
	c.dispatcher.Emit(target, v)
}

func (c *Client) setState(next ConnectionState, cause error) {
	c.mu.Lock()
	fire := c.setStateLocked(next, cause)
	c.mu.Unlock()
	fire()
}

// setStateLocked mutates the state with mu held and returns the hook call to
// run after unlocking.
func (c *Client) setStateLocked(next ConnectionState, cause error) func() {
	prev := c.state
	c.state = next
	hook := c.onState
	if hook == nil || prev == next {
		return func() {}
	}
	return func() { hook(StateChange{Old: prev, New: next, Error: cause}) }
}

func (c *Client) dialWebSocket(ctx context.Context, hubURL, token string) (transport, error) {
	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}
	ws, _, err := websocket.Dial(dialCtx, hubURL, opts)
	if err != nil {
		return nil, err
	}
	return &wsConn{
		ws:           ws,
		readTimeout:  c.cfg.ReadTimeout,
		writeTimeout: c.cfg.WriteTimeout,
	}, nil
}

// wsConn adapts a websocket connection to the hub framing, applying the
// configured deadline per read and write.
type wsConn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *wsConn) ReadFrame(ctx context.Context) (frame, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	var f frame
	err := wsjson.Read(ctx, c.ws, &f)
	return f, err
}

func (c *wsConn) WriteInvocation(ctx context.Context, inv invocation) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.ws, inv)
}

func (c *wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
