// Package protocol defines the named-event frames exchanged between a quiz
// client and server over a single websocket connection.
//
// Every message on the wire is a Frame: {"event": "...", "data": {...}}.
// Payload shapes below are the superset of both server versions we've seen;
// optional numbering fields are simply absent (zero) when a server doesn't
// send them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Client -> Server
const (
	EventJoin        = "join"
	EventCheckAnswer = "check_answer"
	EventSendMessage = "send_message"
)

// Server -> Client
const (
	EventJoined       = "joined"
	EventQuestion     = "question"
	EventAnswerResult = "answer_result"
	EventUserLeft     = "user_left"
	EventLeaderboard  = "leaderboard"
	EventRoomMessages = "room_messages"
	EventGameEnd      = "game_end"
)

var ErrEmptyEvent = errors.New("frame missing event name")

// Frame is the envelope for every message on the channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a ready-to-send Frame.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Encode marshals a full frame for the wire.
func Encode(event string, payload any) ([]byte, error) {
	f, err := NewFrame(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Decode parses a raw frame. A frame without an event name is an error so
// callers can drop it without guessing.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, ErrEmptyEvent
	}
	return f, nil
}

// ID is an opaque question identifier. Servers disagree on whether ids are
// JSON numbers or strings, so it decodes from either and compares as a
// string. Numeric ids are re-encoded as numbers so servers that key on
// integers still match.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	// Only canonical integers go out bare; "03" or "+5" stay strings.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Outbound payloads.

type Join struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}

type CheckAnswer struct {
	SessionID  string `json:"session_id"`
	Username   string `json:"username"`
	QuestionID ID     `json:"question_id"`
	Answer     string `json:"answer"`
}

type SendMessage struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

// Inbound payloads.

type Joined struct {
	Message string `json:"message"`
}

// Question replaces the current question wholesale. CurrentQuestionNum and
// QuestionTotalNum are 1-based; zero means the server provided no numbering.
type Question struct {
	QuestionID         ID     `json:"question_id"`
	QuestionText       string `json:"question_text"`
	CurrentQuestionNum int    `json:"current_question_num,omitempty"`
	QuestionTotalNum   int    `json:"question_total_num,omitempty"`
}

type AnswerResult struct {
	Username   string `json:"username"`
	Status     string `json:"status"`
	QuestionID ID     `json:"question_id"`
}

type UserLeft struct {
	Message string `json:"message"`
}

type GameEnd struct {
	Message string `json:"message"`
}

// ChatMessage is one room-history entry. Username is empty for system
// announcements.
type ChatMessage struct {
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type RoomMessages struct {
	Messages []ChatMessage `json:"messages"`
}

// Entry is one ranked leaderboard row. On the wire it is a two-element
// array, [username, score], matching the server contract.
type Entry struct {
	Username string
	Score    int
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Username, e.Score})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("leaderboard entry: want 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &e.Username); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &e.Score)
}

// Leaderboard is the full ranked snapshot. Order is the server's ranking;
// clients must not re-sort it.
type Leaderboard struct {
	Leaderboard []Entry `json:"leaderboard"`
}
