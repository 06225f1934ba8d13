// Package session runs the client session actor: one goroutine owns the
// whole game state, every inbound server event and user intent is a typed
// message on its inbox, and views only ever read snapshots. This keeps the
// single-logical-writer guarantee without any locks around tracker state.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mathroom/mathroom/internal/channel"
	"github.com/mathroom/mathroom/internal/engine"
	"github.com/mathroom/mathroom/pkg/protocol"
)

// Channel is the slice of the channel adapter the session needs. Satisfied
// by *channel.Adapter; tests swap in a recording fake.
type Channel interface {
	Subscribe(event string, fn channel.Handler)
	Send(ctx context.Context, event string, payload any) error
	SetJoined()
	State() channel.ConnState
	Close() error
}

// Config is the immutable session identity, built once at start and passed
// in. Both fields are opaque caller-supplied strings.
type Config struct {
	SessionID string
	Username  string
}

type Msg interface{ isSessionMsg() }

// ServerEvent carries one inbound frame from the channel onto the actor.
type ServerEvent struct {
	Frame protocol.Frame
}

func (ServerEvent) isSessionMsg() {}

// SubmitAnswer is the answer-submission intent. QuestionID must match the
// current question or the whole intent is silently dropped.
type SubmitAnswer struct {
	QuestionID protocol.ID
	Text       string
}

func (SubmitAnswer) isSessionMsg() {}

type SendChat struct{ Text string }

func (SendChat) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// View is a read-only snapshot for rendering.
type View struct {
	Version int
	Conn    channel.ConnState
	State   engine.State
}

type Session struct {
	cfg     Config
	ch      Channel
	log     *zap.SugaredLogger
	inbox   chan Msg
	updates chan View
	state   engine.State
	version int

	joinOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

var inboundEvents = []string{
	protocol.EventJoined,
	protocol.EventQuestion,
	protocol.EventAnswerResult,
	protocol.EventUserLeft,
	protocol.EventLeaderboard,
	protocol.EventRoomMessages,
	protocol.EventGameEnd,
}

// New wires the full inbound event surface into the channel's subscription
// table and starts the actor loop.
func New(parent context.Context, cfg Config, ch Channel, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		cfg:     cfg,
		ch:      ch,
		log:     log.Sugar(),
		inbox:   make(chan Msg, 64),
		updates: make(chan View, 8),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, event := range inboundEvents {
		ch.Subscribe(event, s.forward(event))
	}
	go s.loop()
	return s
}

// forward queues an inbound event onto the actor. Once the session is torn
// down the send is abandoned, so no handler can mutate state afterwards.
func (s *Session) forward(event string) channel.Handler {
	return func(data json.RawMessage) {
		select {
		case s.inbox <- ServerEvent{Frame: protocol.Frame{Event: event, Data: data}}:
		case <-s.ctx.Done():
		}
	}
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Updates delivers view snapshots. Slow consumers lose old snapshots, never
// the latest one. Closed on shutdown.
func (s *Session) Updates() <-chan View { return s.updates }

// Join sends the handshake. At most one join goes out per session lifetime
// no matter how often this is called; re-joining after a reconnect means a
// fresh adapter and a fresh session.
func (s *Session) Join(ctx context.Context) error {
	var err error
	s.joinOnce.Do(func() {
		err = s.ch.Send(ctx, protocol.EventJoin, protocol.Join{
			Username:  s.cfg.Username,
			SessionID: s.cfg.SessionID,
		})
	})
	return err
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case ServerEvent:
				s.handleServer(msg.Frame)

			case SubmitAnswer:
				s.submitAnswer(msg)

			case SendChat:
				s.sendChat(msg)

			case GetState:
				msg.Reply <- View{Version: s.version, Conn: s.ch.State(), State: s.state}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleServer(f protocol.Frame) {
	if f.Event == protocol.EventJoined {
		var j protocol.Joined
		if err := json.Unmarshal(f.Data, &j); err == nil && j.Message != "" {
			s.log.Infow("joined session", "message", j.Message)
		}
		s.ch.SetJoined()
		s.version++
		s.broadcast()
		return
	}

	next, err := engine.Apply(s.state, s.cfg.Username, f)
	if err != nil {
		// Unexpected or malformed events degrade to "ignored", never a crash.
		s.log.Debugw("ignoring event", "event", f.Event, "err", err)
		return
	}
	s.state = next
	s.version++
	s.broadcast()
}

// submitAnswer is the answer correlator's outbound half. Preconditions are
// checked here so a stale or empty submission generates no channel traffic.
func (s *Session) submitAnswer(msg SubmitAnswer) {
	if !s.state.HasQuestion || s.state.Ended {
		return
	}
	if msg.QuestionID != s.state.Question.ID {
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	err := s.ch.Send(s.ctx, protocol.EventCheckAnswer, protocol.CheckAnswer{
		SessionID:  s.cfg.SessionID,
		Username:   s.cfg.Username,
		QuestionID: msg.QuestionID,
		Answer:     msg.Text,
	})
	if err != nil {
		s.log.Warnw("submit answer failed", "err", err)
	}
}

func (s *Session) sendChat(msg SendChat) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	err := s.ch.Send(s.ctx, protocol.EventSendMessage, protocol.SendMessage{
		SessionID: s.cfg.SessionID,
		Username:  s.cfg.Username,
		Message:   msg.Text,
	})
	if err != nil {
		s.log.Warnw("send message failed", "err", err)
	}
}

func (s *Session) broadcast() {
	v := View{Version: s.version, Conn: s.ch.State(), State: s.state}
	select {
	case s.updates <- v:
	default:
		// Full buffer: evict the oldest snapshot so the latest lands.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- v:
		default:
		}
	}
}

func (s *Session) shutdown() {
	// Adapter first: once updates closes, observers may assume the
	// connection is released.
	if err := s.ch.Close(); err != nil {
		s.log.Debugw("channel close", "err", err)
	}
	s.cancel()
	close(s.updates)
}
