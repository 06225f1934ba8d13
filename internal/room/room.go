// Package room runs one quiz session as an actor: a goroutine owning the
// participants, scores, message history and current question, fed by a
// typed inbox and broadcasting frames to per-client outboxes.
package room

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mathroom/mathroom/pkg/protocol"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Username string
	Outbox   chan protocol.Frame // where this client receives frames
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type CheckAnswer struct{ Req protocol.CheckAnswer }

func (CheckAnswer) isRoomMsg() {}

type Chat struct{ Req protocol.SendMessage }

func (Chat) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View is a test-only reflection of room internals, answered on the actor
// goroutine so there are no data races.
type View struct {
	NumClients int
	Scores     map[string]int
	CurrentID  protocol.ID
	Asked      int
	Ended      bool
	History    []protocol.ChatMessage
}

type client struct {
	username string
	outbox   chan protocol.Frame
}

type Room struct {
	id      string
	log     *zap.SugaredLogger
	inbox   chan Msg
	clients map[string]client
	scores  map[string]int
	order   []string // usernames in first-seen order, for stable ranking ties
	history []protocol.ChatMessage
	bank    *Bank
	current *Question
	asked   int
	rounds  int // 0 = endless
	ended   bool
	onEmpty func()
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRoom starts the actor. rounds caps how many questions are asked before
// game_end; zero means the game never ends. onEmpty fires (on the actor
// goroutine) when the last client leaves, so the hub can drop the room.
func NewRoom(parent context.Context, id string, bank *Bank, rounds int, onEmpty func(), log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:      id,
		log:     log.Sugar().With("room", id),
		inbox:   make(chan Msg, 64),
		clients: make(map[string]client),
		scores:  make(map[string]int),
		bank:    bank,
		rounds:  rounds,
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)
				if len(r.clients) == 0 {
					if r.onEmpty != nil {
						r.onEmpty()
					}
					r.shutdown()
					return
				}

			case CheckAnswer:
				r.handleCheckAnswer(msg.Req)

			case Chat:
				r.handleChat(msg.Req)

			case GetState:
				msg.Reply <- View{
					NumClients: len(r.clients),
					Scores:     copyScores(r.scores),
					CurrentID:  r.currentID(),
					Asked:      r.asked,
					Ended:      r.ended,
					History:    append([]protocol.ChatMessage(nil), r.history...),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	r.clients[msg.ClientID] = client{username: msg.Username, outbox: msg.Outbox}
	if _, seen := r.scores[msg.Username]; !seen {
		r.order = append(r.order, msg.Username)
	}
	r.scores[msg.Username] = 0

	r.broadcast(protocol.EventJoined, protocol.Joined{
		Message: fmt.Sprintf("Welcome %s! You are now in session %s.", msg.Username, r.id),
	})
	r.broadcast(protocol.EventRoomMessages, protocol.RoomMessages{Messages: r.history})
	r.broadcastLeaderboard()

	switch {
	case r.ended:
		r.sendTo(msg.ClientID, protocol.EventGameEnd, protocol.GameEnd{Message: "Game over! Thanks for playing."})
	case r.current != nil:
		r.sendTo(msg.ClientID, protocol.EventQuestion, r.questionPayload())
	default:
		r.nextQuestion()
	}
}

func (r *Room) handleLeave(msg Leave) {
	c, ok := r.clients[msg.ClientID]
	if !ok {
		return
	}
	delete(r.clients, msg.ClientID)
	// The writer draining this outbox exits when it closes.
	close(c.outbox)

	// Another connection may share the username (same player, two tabs).
	for _, other := range r.clients {
		if other.username == c.username {
			return
		}
	}
	delete(r.scores, c.username)
	for i, u := range r.order {
		if u == c.username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	text := fmt.Sprintf("%s has left the game.", c.username)
	r.history = append(r.history, protocol.ChatMessage{Message: text, Timestamp: timestamp()})
	r.broadcast(protocol.EventUserLeft, protocol.UserLeft{Message: text})
	r.broadcastLeaderboard()
}

func (r *Room) handleCheckAnswer(req protocol.CheckAnswer) {
	if r.ended {
		return
	}
	if _, seen := r.scores[req.Username]; !seen {
		// A submission from a connection that never joined; ignore it.
		r.log.Debugw("answer from unknown user", "username", req.Username)
		return
	}

	// Grade against the question the client referenced, not the room's
	// current one; a slow answer to a superseded question still resolves.
	answer, known := r.bank.AnswerFor(req.QuestionID)
	status := "incorrect"
	if known && req.Answer == answer {
		status = "correct"
		r.scores[req.Username] += 100
	} else {
		r.scores[req.Username] -= 50
	}

	r.history = append(r.history, protocol.ChatMessage{
		Username:  req.Username,
		Message:   fmt.Sprintf("%s got the answer %s!", req.Username, status),
		Timestamp: timestamp(),
	})
	r.broadcast(protocol.EventAnswerResult, protocol.AnswerResult{
		Username:   req.Username,
		Status:     status,
		QuestionID: req.QuestionID,
	})
	r.broadcastLeaderboard()

	if status == "correct" {
		r.nextQuestion()
	}
}

func (r *Room) handleChat(req protocol.SendMessage) {
	if strings.TrimSpace(req.Message) == "" {
		return
	}
	r.history = append(r.history, protocol.ChatMessage{
		Username:  req.Username,
		Message:   req.Message,
		Timestamp: timestamp(),
	})
	// Chat is delivered as a full-history push.
	r.broadcast(protocol.EventRoomMessages, protocol.RoomMessages{Messages: r.history})
}

func (r *Room) nextQuestion() {
	if r.rounds > 0 && r.asked >= r.rounds {
		r.ended = true
		r.current = nil
		r.broadcast(protocol.EventGameEnd, protocol.GameEnd{Message: "Game over! Thanks for playing."})
		return
	}
	q, ok := r.bank.Draw()
	if !ok {
		r.log.Warnw("question bank is empty")
		return
	}
	r.current = &q
	r.asked++
	r.broadcast(protocol.EventQuestion, r.questionPayload())
}

// questionPayload includes numbering only when a round limit makes "of N"
// meaningful; endless rooms match the older server that sent none.
func (r *Room) questionPayload() protocol.Question {
	p := protocol.Question{QuestionID: r.current.ID, QuestionText: r.current.Text}
	if r.rounds > 0 {
		p.CurrentQuestionNum = r.asked
		p.QuestionTotalNum = r.rounds
	}
	return p
}

func (r *Room) broadcastLeaderboard() {
	entries := make([]protocol.Entry, 0, len(r.order))
	for _, u := range r.order {
		entries = append(entries, protocol.Entry{Username: u, Score: r.scores[u]})
	}
	// Stable sort keeps join order for ties; the server is the single
	// ranking authority, clients render as delivered.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	r.broadcast(protocol.EventLeaderboard, protocol.Leaderboard{Leaderboard: entries})
}

func (r *Room) broadcast(event string, payload any) {
	f, err := protocol.NewFrame(event, payload)
	if err != nil {
		r.log.Errorw("encode broadcast", "event", event, "err", err)
		return
	}
	for id, c := range r.clients {
		select {
		case c.outbox <- f:
			// ok
		default:
			// Client is slow/full - drop them.
			close(c.outbox)
			delete(r.clients, id)
		}
	}
}

func (r *Room) sendTo(clientID, event string, payload any) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	f, err := protocol.NewFrame(event, payload)
	if err != nil {
		r.log.Errorw("encode frame", "event", event, "err", err)
		return
	}
	select {
	case c.outbox <- f:
	default:
		close(c.outbox)
		delete(r.clients, clientID)
	}
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) currentID() protocol.ID {
	if r.current == nil {
		return ""
	}
	return r.current.ID
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
