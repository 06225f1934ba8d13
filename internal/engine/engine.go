// Package engine holds the client-side game state and the pure reducers
// that fold inbound server events into it. Nothing here touches the
// network; the session actor owns a State and is its only writer.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mathroom/mathroom/pkg/protocol"
)

var ErrSessionEnded = errors.New("session already ended")
var ErrUnsupportedEvent = errors.New("unsupported event")
var ErrMalformedEvent = errors.New("malformed event payload")

// QuestionView is the currently displayed question. Num/Total are 0 when
// the server sends no numbering.
type QuestionView struct {
	ID    protocol.ID
	Text  string
	Num   int
	Total int
}

// LogMessage is one chat/system line. Username is empty for announcements.
type LogMessage struct {
	Username string
	Text     string
}

// Entry is one leaderboard row, in server rank order.
type Entry struct {
	Username string
	Score    int
}

type State struct {
	Question    QuestionView
	HasQuestion bool
	Ended       bool
	Leaderboard []Entry
	Log         []LogMessage
}

// Apply folds one server frame into the state and returns the new state.
// identity is the local username, used to attribute answer results.
//
// The returned error is advisory: the input state is always returned
// unchanged alongside it, so callers can log and keep going. A missing
// expected field yields ErrMalformedEvent rather than a partial update.
func Apply(s State, identity string, f protocol.Frame) (State, error) {
	switch f.Event {
	case protocol.EventQuestion:
		return applyQuestion(s, f.Data)
	case protocol.EventGameEnd:
		return applyGameEnd(s, f.Data)
	case protocol.EventAnswerResult:
		return applyAnswerResult(s, identity, f.Data)
	case protocol.EventUserLeft:
		return applyUserLeft(s, f.Data)
	case protocol.EventLeaderboard:
		return applyLeaderboard(s, f.Data)
	case protocol.EventRoomMessages:
		return applyRoomMessages(s, f.Data)
	case protocol.EventJoined:
		// Connection-state concern, handled by the session. No state here.
		return s, nil
	default:
		return s, fmt.Errorf("%w: %s", ErrUnsupportedEvent, f.Event)
	}
}

func applyQuestion(s State, data json.RawMessage) (State, error) {
	if s.Ended {
		return s, ErrSessionEnded
	}
	var q protocol.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return s, fmt.Errorf("%w: question: %v", ErrMalformedEvent, err)
	}
	if q.QuestionText == "" {
		return s, fmt.Errorf("%w: question without text", ErrMalformedEvent)
	}
	// Wholesale replacement, id/text/numbering together. A redelivered
	// question with the current id replaces state all the same.
	s.Question = QuestionView{
		ID:    q.QuestionID,
		Text:  q.QuestionText,
		Num:   q.CurrentQuestionNum,
		Total: q.QuestionTotalNum,
	}
	s.HasQuestion = true
	return s, nil
}

func applyGameEnd(s State, data json.RawMessage) (State, error) {
	var ge protocol.GameEnd
	if err := json.Unmarshal(data, &ge); err != nil {
		return s, fmt.Errorf("%w: game_end: %v", ErrMalformedEvent, err)
	}
	if ge.Message == "" {
		return s, fmt.Errorf("%w: game_end without message", ErrMalformedEvent)
	}
	s.Ended = true
	s.HasQuestion = false
	// The final message takes over the question display.
	s.Question = QuestionView{Text: ge.Message}
	return s, nil
}

func applyAnswerResult(s State, identity string, data json.RawMessage) (State, error) {
	var r protocol.AnswerResult
	if err := json.Unmarshal(data, &r); err != nil {
		return s, fmt.Errorf("%w: answer_result: %v", ErrMalformedEvent, err)
	}
	if r.Username == "" || r.Status == "" {
		return s, fmt.Errorf("%w: answer_result missing username or status", ErrMalformedEvent)
	}
	// Results for superseded questions are still logged; only the question
	// display gets replaced, never the record of past results.
	var text string
	if r.Username == identity {
		text = fmt.Sprintf("Your answer is %s.", r.Status)
	} else {
		text = fmt.Sprintf("%s got the answer %s.", r.Username, r.Status)
	}
	s.Log = append(s.Log, LogMessage{Username: r.Username, Text: text})
	return s, nil
}

func applyUserLeft(s State, data json.RawMessage) (State, error) {
	var ul protocol.UserLeft
	if err := json.Unmarshal(data, &ul); err != nil {
		return s, fmt.Errorf("%w: user_left: %v", ErrMalformedEvent, err)
	}
	if ul.Message == "" {
		return s, fmt.Errorf("%w: user_left without message", ErrMalformedEvent)
	}
	s.Log = append(s.Log, LogMessage{Text: ul.Message})
	return s, nil
}

func applyLeaderboard(s State, data json.RawMessage) (State, error) {
	var lb protocol.Leaderboard
	if err := json.Unmarshal(data, &lb); err != nil {
		return s, fmt.Errorf("%w: leaderboard: %v", ErrMalformedEvent, err)
	}
	// Wholesale replace in server order. No re-sort, no dedupe; the server
	// is the single ranking authority.
	entries := make([]Entry, len(lb.Leaderboard))
	for i, e := range lb.Leaderboard {
		entries[i] = Entry{Username: e.Username, Score: e.Score}
	}
	s.Leaderboard = entries
	return s, nil
}

func applyRoomMessages(s State, data json.RawMessage) (State, error) {
	var rm protocol.RoomMessages
	if err := json.Unmarshal(data, &rm); err != nil {
		return s, fmt.Errorf("%w: room_messages: %v", ErrMalformedEvent, err)
	}
	// Full-history push discards whatever we had.
	log := make([]LogMessage, len(rm.Messages))
	for i, m := range rm.Messages {
		log[i] = LogMessage{Username: m.Username, Text: m.Message}
	}
	s.Log = log
	return s, nil
}

// LogTail returns the last n log messages. The full log stays the state of
// record; windowing is for display only.
func (s State) LogTail(n int) []LogMessage {
	if n <= 0 || len(s.Log) <= n {
		return s.Log
	}
	return s.Log[len(s.Log)-n:]
}
