// Package ws upgrades HTTP requests to quiz websocket connections and
// bridges frames between the socket and the room actor.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mathroom/mathroom/internal/hub"
	"github.com/mathroom/mathroom/internal/room"
	"github.com/mathroom/mathroom/pkg/protocol"
)

const (
	joinTimeout  = 30 * time.Second
	writeTimeout = 3 * time.Second
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	slog := log.Sugar()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// The handshake: the first frame must be a join.
		join, ok := readJoin(r.Context(), conn)
		if !ok {
			_ = conn.Write(r.Context(), websocket.MessageText,
				[]byte(`{"event":"error","data":{"message":"expected join"}}`))
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{ID: join.SessionID, Reply: reply}
		rm := <-reply

		out := make(chan protocol.Frame, 32)
		clientID := uuid.NewString()

		rm.Inbox() <- room.Join{ClientID: clientID, Username: join.Username, Outbox: out}
		defer func() { rm.Inbox() <- room.Leave{ClientID: clientID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for f := range out {
				payload, err := json.Marshal(f)
				if err != nil {
					slog.Errorw("marshal frame", "event", f.Event, "err", err)
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, raw, err := conn.Read(r.Context())
			if err != nil {
				// Clean close/going-away is normal; either way the deferred
				// Leave tells the room.
				return
			}

			frame, err := protocol.Decode(raw)
			if err != nil {
				slog.Debugw("dropping malformed frame", "err", err)
				continue
			}

			switch frame.Event {
			case protocol.EventCheckAnswer:
				var req protocol.CheckAnswer
				if err := json.Unmarshal(frame.Data, &req); err != nil {
					slog.Debugw("bad check_answer", "err", err)
					continue
				}
				rm.Inbox() <- room.CheckAnswer{Req: req}

			case protocol.EventSendMessage:
				var req protocol.SendMessage
				if err := json.Unmarshal(frame.Data, &req); err != nil {
					slog.Debugw("bad send_message", "err", err)
					continue
				}
				rm.Inbox() <- room.Chat{Req: req}

			default:
				slog.Debugw("ignoring event", "event", frame.Event)
			}
		}
	}
}

func readJoin(parent context.Context, conn *websocket.Conn) (protocol.Join, bool) {
	ctx, cancel := context.WithTimeout(parent, joinTimeout)
	defer cancel()

	_, raw, err := conn.Read(ctx)
	if err != nil {
		return protocol.Join{}, false
	}
	frame, err := protocol.Decode(raw)
	if err != nil || frame.Event != protocol.EventJoin {
		return protocol.Join{}, false
	}
	var join protocol.Join
	if err := json.Unmarshal(frame.Data, &join); err != nil {
		return protocol.Join{}, false
	}
	if join.Username == "" {
		join.Username = "User123"
	}
	if join.SessionID == "" {
		join.SessionID = "session1"
	}
	return join, true
}
