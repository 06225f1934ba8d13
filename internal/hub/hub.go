// Package hub owns the set of live quiz rooms, keyed by session id. It is
// an actor: all map access happens on its loop goroutine.
package hub

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mathroom/mathroom/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	ID    string
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom returns the existing room or creates it, the join-creates-room
// behavior a first joiner relies on.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Config is applied to every room the hub creates.
type Config struct {
	Questions []room.Question
	Rounds    int // questions per game, 0 = endless
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config, log *zap.Logger) *Hub {
	if cfg.Questions == nil {
		cfg.Questions = room.DefaultQuestions()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.create(msg.ID)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case EnsureRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.create(msg.ID)

			case RemoveRoom:
				delete(h.rooms, msg.ID)

			case ListRooms:
				ids := make([]string, 0, len(h.rooms))
				for id := range h.rooms {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(id string) *room.Room {
	bank := room.NewBank(h.cfg.Questions, time.Now().UnixNano())
	onEmpty := func() {
		// Runs on the room's goroutine; hand removal back to the hub loop.
		select {
		case h.inbox <- RemoveRoom{ID: id}:
		case <-h.ctx.Done():
		}
	}
	r := room.NewRoom(h.ctx, id, bank, h.cfg.Rounds, onEmpty, h.log)
	h.rooms[id] = r
	h.log.Sugar().Infow("room created", "room", id)
	return r
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		r.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
