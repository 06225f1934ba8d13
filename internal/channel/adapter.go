// Package channel owns the single websocket connection to one quiz session
// and the subscription table that routes named server events to handlers.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mathroom/mathroom/pkg/protocol"
)

var ErrNotConnected = errors.New("channel not connected")

type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateJoined       ConnState = "joined"
	StateDisconnected ConnState = "disconnected"
)

const writeTimeout = 3 * time.Second

// Handler receives the raw payload of one named event.
type Handler func(data json.RawMessage)

// Adapter is the channel adapter: exactly one per mounted session. The
// subscription table is fixed before Run starts; handlers run on the read
// pump goroutine and must not block.
type Adapter struct {
	log      *zap.SugaredLogger
	handlers map[string]Handler

	mu     sync.Mutex
	conn   *websocket.Conn
	state  ConnState
	closed bool
}

func New(log *zap.Logger) *Adapter {
	return &Adapter{
		log:      log.Sugar(),
		handlers: make(map[string]Handler),
		state:    StateConnecting,
	}
}

// Subscribe registers the handler for one event name. Must be called before
// Run; later calls would race the read pump.
func (a *Adapter) Subscribe(event string, fn Handler) {
	a.handlers[event] = fn
}

// Dial opens the connection. Transport negotiation (TLS, subprotocols,
// credentials) is the websocket library's business.
func (a *Adapter) Dial(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.log.Debugw("channel open", "url", url)
	return nil
}

// Send marshals and writes one named event. There is no queue: before the
// connection is open this fails, and callers must not assume delivery
// before the session is joined.
func (a *Adapter) Send(ctx context.Context, event string, payload any) error {
	a.mu.Lock()
	conn := a.conn
	closed := a.closed
	a.mu.Unlock()
	if conn == nil || closed {
		return ErrNotConnected
	}

	raw, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// Run is the read pump. It returns nil on clean close or teardown, and the
// read error otherwise. Either way the state ends up Disconnected.
func (a *Adapter) Run(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	defer a.setState(StateDisconnected)
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil || a.isClosed() {
				return nil
			}
			return fmt.Errorf("channel read: %w", err)
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			a.log.Debugw("dropping malformed frame", "err", err)
			continue
		}
		a.Dispatch(frame)
	}
}

// Dispatch routes one frame through the subscription table. Unknown events
// are dropped. After Close it is a no-op, so a late frame can never touch
// tracker state. Exported so tests can inject synthetic frames without a
// live connection.
func (a *Adapter) Dispatch(f protocol.Frame) {
	if a.isClosed() {
		return
	}
	fn, ok := a.handlers[f.Event]
	if !ok {
		a.log.Debugw("no handler for event", "event", f.Event)
		return
	}
	fn(f.Data)
}

// Close tears the connection down. Idempotent; safe on every exit path.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.state = StateDisconnected
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

func (a *Adapter) State() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetJoined is called by the session negotiator once the server
// acknowledges the join.
func (a *Adapter) SetJoined() {
	a.setState(StateJoined)
}

func (a *Adapter) setState(s ConnState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed && s == StateJoined {
		return
	}
	a.state = s
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
