package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

// DefaultSocketURL is the vendor event-server endpoint.
const DefaultSocketURL = "wss://ws.moodo.co:9090"

// State is the connection state of the channel.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateSubscribing    State = "subscribing"
	StateActive         State = "active"
)

// EventFunc receives one device payload with the echoed request id, if any.
type EventFunc func(box model.Box, requestID string)

// frame is an outbound authenticate or subscribe message.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// envelope is the inbound event shape.
type envelope struct {
	Type             string          `json:"type"`
	Data             json.RawMessage `json:"data"`
	RestfulRequestID string          `json:"restful_request_id"`
	Sent             int64           `json:"sent"`
}

// Channel maintains the long-lived event connection and forwards device
// state notifications. After the initial dial succeeds a supervising
// goroutine owns the post-connect handshake, the read loop, and unlimited
// reconnection with bounded backoff.
type Channel struct {
	url       string
	token     func() string
	deviceIDs []string
	onEvent   EventFunc
	logger    *slog.Logger

	// The backend silently drops frames sent too early after connect.
	// These delays are required by the remote service, not tunables.
	authGrace      time.Duration
	subscribeGrace time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a channel for the given device ids. token is read at
// authenticate time so a re-login picks up the fresh session token.
func New(url string, token func() string, deviceIDs []string, onEvent EventFunc, logger *slog.Logger) *Channel {
	if url == "" {
		url = DefaultSocketURL
	}
	return &Channel{
		url:            url,
		token:          token,
		deviceIDs:      deviceIDs,
		onEvent:        onEvent,
		logger:         logger,
		authGrace:      time.Second,
		subscribeGrace: 2 * time.Second,
		backoffMin:     time.Second,
		backoffMax:     5 * time.Second,
		state:          StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the event server. A dial failure is returned so the caller
// can continue without push updates; on success the channel keeps itself
// connected in the background until Disconnect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("push connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, conn, done)
	return nil
}

// Disconnect tears the connection down, suppresses reconnection, and waits
// for the supervising goroutine to exit.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setState(StateDisconnected)
}

func (c *Channel) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := c.session(ctx, conn)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			c.logger.Info("push channel closed")
			return
		}
		c.logger.Warn("push channel disconnected", "err", err)

		conn = nil
		backoff := c.backoffMin
		for conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			c.setState(StateConnecting)
			next, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.setState(StateDisconnected)
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("push reconnect failed", "err", err)
				backoff *= 2
				if backoff > c.backoffMax {
					backoff = c.backoffMax
				}
				continue
			}
			conn = next
		}
	}
}

func (c *Channel) session(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Unblock the read loop when the session is cancelled.
	watchdog := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdog:
		}
	}()
	defer close(watchdog)

	c.setState(StateAuthenticating)
	if err := sleep(ctx, c.authGrace); err != nil {
		return err
	}
	if err := conn.WriteJSON(frame{Event: "authenticate", Data: c.token()}); err != nil {
		return err
	}

	c.setState(StateSubscribing)
	if err := sleep(ctx, c.subscribeGrace); err != nil {
		return err
	}
	for _, deviceID := range c.deviceIDs {
		if err := conn.WriteJSON(frame{Event: "subscribe", Data: deviceID}); err != nil {
			return err
		}
	}

	c.setState(StateActive)
	c.logger.Info("push channel active", "devices", len(c.deviceIDs))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(message)
	}
}

// dispatch forwards a conforming ws_event envelope and drops anything else.
func (c *Channel) dispatch(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}
	if len(env.Data) == 0 {
		return
	}
	var box model.Box
	if err := json.Unmarshal(env.Data, &box); err != nil {
		c.logger.Debug("dropping malformed push payload", "err", err)
		return
	}
	if c.onEvent != nil {
		c.onEvent(box, env.RestfulRequestID)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
