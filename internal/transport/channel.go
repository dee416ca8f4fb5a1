package transport

import (
	"context"
	"expvar"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/domain"
	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

const writeWait = 5 * time.Second

// DroppedMessages counts push frames that failed to decode.
var DroppedMessages = expvar.NewInt("board_dropped_messages")

var pingFrame = []byte(`{"type":"ping"}`)

type Config struct {
	Enabled              bool
	BaseURL              string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HeartbeatInterval    time.Duration
	TokenSecret          string
	TokenTTL             time.Duration
	ClientID             string
}

// Handlers are invoked from the channel's goroutines. They must not block for long.
type Handlers struct {
	OnMessage func(models.Envelope)
	OnOpen    func()
	OnClose   func(code int)
	OnState   func(models.ConnectionState)
}

type Channel struct {
	cfg    Config
	dialer Dialer
	clock  clock.Clock
	l      logger.Logger
}

func NewChannel(cfg Config, dialer Dialer, clk clock.Clock, l logger.Logger) *Channel {
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		clock:  clk,
		l:      l,
	}
}

// Handle controls one push connection. Close is safe to call any number of times.
type Handle struct {
	ch       *Channel
	topicKey string
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          models.ConnectionState
	conn           Conn
	gen            int
	closed         bool
	reconnectTimer clock.Timer
	heartbeatTimer clock.Timer
}

// Open starts connecting to the topic. The first dial runs on the clock, not inline.
// When push is disabled the returned handle is already closed and never dials.
func (c *Channel) Open(topicKey string, handlers Handlers) (*Handle, error) {
	if strings.TrimSpace(topicKey) == "" {
		return nil, errors.ErrEmptyTopic
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ch:       c,
		topicKey: topicKey,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}

	if !c.cfg.Enabled {
		cancel()
		h.closed = true
		h.state = models.ConnectionState{State: models.ChannelClosed}
		c.l.Infof(ctx, "transport.Open: push disabled, topic %s relies on polling", topicKey)
		return h, nil
	}

	h.mu.Lock()
	h.state = models.ConnectionState{State: models.ChannelConnecting}
	h.reconnectTimer = c.clock.AfterFunc(0, h.connect)
	h.mu.Unlock()
	h.emitState(models.ConnectionState{State: models.ChannelConnecting})

	return h, nil
}

func (h *Handle) State() models.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Close stops timers synchronously and sends a normal closure if a connection is live.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.gen++
	h.stopTimersLocked()
	conn := h.conn
	h.conn = nil
	h.state = models.ConnectionState{State: models.ChannelClosed, Attempt: h.state.Attempt}
	state := h.state
	h.mu.Unlock()

	h.cancel()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			h.ch.l.Debugf(h.ctx, "transport.Close: close frame: %v", err)
		}
		_ = conn.Close()
		if h.handlers.OnClose != nil {
			h.handlers.OnClose(websocket.CloseNormalClosure)
		}
	}
	h.emitState(state)
}

func (h *Handle) connect() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.reconnectTimer = nil
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	header := http.Header{}
	if h.ch.cfg.TokenSecret != "" {
		token, err := NewHandshakeToken(h.ch.cfg.TokenSecret, h.ch.cfg.ClientID, h.topicKey, h.ch.cfg.TokenTTL, h.ch.clock.Now())
		if err != nil {
			h.ch.l.Errorf(h.ctx, "transport.connect.NewHandshakeToken: %v", err)
		} else {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, err := h.ch.dialer.Dial(h.ctx, h.url(), header)
	if err != nil {
		h.ch.l.Warnf(h.ctx, "transport.connect: topic %s: %v", h.topicKey, err)
		h.disconnected(gen, websocket.CloseAbnormalClosure)
		return
	}

	h.mu.Lock()
	if h.closed || gen != h.gen {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conn = conn
	h.state = models.ConnectionState{State: models.ChannelOpen, Attempt: 0}
	if h.ch.cfg.HeartbeatInterval > 0 {
		h.heartbeatTimer = h.ch.clock.AfterFunc(h.ch.cfg.HeartbeatInterval, func() { h.heartbeat(gen) })
	}
	state := h.state
	h.mu.Unlock()

	h.ch.l.Infof(h.ctx, "transport.connect: topic %s open", h.topicKey)
	if h.handlers.OnOpen != nil {
		h.handlers.OnOpen()
	}
	h.emitState(state)

	go h.readLoop(gen, conn)
}

func (h *Handle) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.disconnected(gen, closeCode(err))
			return
		}

		env, err := domain.DecodeMessage(data)
		if err != nil {
			DroppedMessages.Add(1)
			h.ch.l.Warnf(h.ctx, "transport.readLoop: dropped message on %s: %v", h.topicKey, err)
			continue
		}
		if env.Event.Type() == models.EventHeartbeat {
			continue
		}
		if h.handlers.OnMessage != nil {
			h.handlers.OnMessage(env)
		}
	}
}

// disconnected applies the reconnect policy: fixed delay, bounded attempts,
// and no reconnect after a normal closure.
func (h *Handle) disconnected(gen int, code int) {
	h.mu.Lock()
	if h.closed || gen != h.gen {
		h.mu.Unlock()
		return
	}
	if h.heartbeatTimer != nil {
		h.heartbeatTimer.Stop()
		h.heartbeatTimer = nil
	}
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}

	attempt := h.state.Attempt
	switch {
	case code == websocket.CloseNormalClosure:
		h.state = models.ConnectionState{State: models.ChannelClosed, Attempt: attempt}
	case attempt < h.ch.cfg.MaxReconnectAttempts:
		h.state = models.ConnectionState{State: models.ChannelReconnecting, Attempt: attempt + 1}
		h.reconnectTimer = h.ch.clock.AfterFunc(h.ch.cfg.ReconnectDelay, h.connect)
	default:
		h.state = models.ConnectionState{State: models.ChannelClosed, Attempt: attempt}
	}
	state := h.state
	h.mu.Unlock()

	if state.State == models.ChannelClosed && code != websocket.CloseNormalClosure {
		h.ch.l.Errorf(h.ctx, "transport.disconnected: topic %s gave up after %d attempts", h.topicKey, attempt)
	} else {
		h.ch.l.Warnf(h.ctx, "transport.disconnected: topic %s code %d, state %s attempt %d", h.topicKey, code, state.State, state.Attempt)
	}

	if h.handlers.OnClose != nil {
		h.handlers.OnClose(code)
	}
	h.emitState(state)
}

// heartbeat sends a ping and reschedules itself. A failed send cancels it.
func (h *Handle) heartbeat(gen int) {
	h.mu.Lock()
	h.heartbeatTimer = nil
	if h.closed || gen != h.gen || h.conn == nil || h.state.State != models.ChannelOpen {
		h.mu.Unlock()
		return
	}
	conn := h.conn
	h.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
		h.ch.l.Warnf(h.ctx, "transport.heartbeat: topic %s: %v", h.topicKey, err)
		return
	}

	h.mu.Lock()
	if !h.closed && gen == h.gen && h.state.State == models.ChannelOpen {
		h.heartbeatTimer = h.ch.clock.AfterFunc(h.ch.cfg.HeartbeatInterval, func() { h.heartbeat(gen) })
	}
	h.mu.Unlock()
}

func (h *Handle) stopTimersLocked() {
	if h.reconnectTimer != nil {
		h.reconnectTimer.Stop()
		h.reconnectTimer = nil
	}
	if h.heartbeatTimer != nil {
		h.heartbeatTimer.Stop()
		h.heartbeatTimer = nil
	}
}

func (h *Handle) emitState(state models.ConnectionState) {
	if h.handlers.OnState != nil {
		h.handlers.OnState(state)
	}
}

func (h *Handle) url() string {
	return strings.TrimRight(h.ch.cfg.BaseURL, "/") + "/ws/board/" + url.PathEscape(h.topicKey)
}
