package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mathroom/mathroom/pkg/protocol"
)

func frame(t *testing.T, event string, payload string) protocol.Frame {
	t.Helper()
	return protocol.Frame{Event: event, Data: json.RawMessage(payload)}
}

func lastLog(t *testing.T, s State) LogMessage {
	t.Helper()
	if len(s.Log) == 0 {
		t.Fatalf("expected a log entry, log is empty")
	}
	return s.Log[len(s.Log)-1]
}

func TestQuestionReplacesWholesale(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    QuestionView
	}{
		{
			name:    "with numbering",
			payload: `{"question_id": 3, "question_text": "What's 15 - 3?", "current_question_num": 2, "question_total_num": 5}`,
			want:    QuestionView{ID: "3", Text: "What's 15 - 3?", Num: 2, Total: 5},
		},
		{
			name:    "without numbering",
			payload: `{"question_id": 0, "question_text": "What's 5 + 7?"}`,
			want:    QuestionView{ID: "0", Text: "What's 5 + 7?"},
		},
		{
			name:    "string id",
			payload: `{"question_id": "q-7", "question_text": "What's 25 / 5?"}`,
			want:    QuestionView{ID: "q-7", Text: "What's 25 / 5?"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Start from a state carrying an older question so partial
			// carry-over would be visible.
			s := State{Question: QuestionView{ID: "99", Text: "old", Num: 9, Total: 9}, HasQuestion: true}
			next, err := Apply(s, "alice", frame(t, protocol.EventQuestion, tc.payload))
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if next.Question != tc.want {
				t.Fatalf("want %+v, got %+v", tc.want, next.Question)
			}
			if !next.HasQuestion {
				t.Fatalf("expected HasQuestion after push")
			}
		})
	}
}

func TestQuestionRedeliverySameIDStillReplaces(t *testing.T) {
	s := State{Question: QuestionView{ID: "1", Text: "stale text", Num: 1, Total: 5}, HasQuestion: true}
	next, err := Apply(s, "alice", frame(t, protocol.EventQuestion,
		`{"question_id": 1, "question_text": "What's 25 / 5?", "current_question_num": 1, "question_total_num": 5}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if next.Question.Text != "What's 25 / 5?" {
		t.Fatalf("redelivered question must replace state, got %+v", next.Question)
	}
}

func TestQuestionAfterGameEndRejected(t *testing.T) {
	s := State{}
	s, err := Apply(s, "alice", frame(t, protocol.EventGameEnd, `{"message": "Game over!"}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !s.Ended || s.Question.Text != "Game over!" {
		t.Fatalf("game_end should end session and take over display, got %+v", s)
	}

	next, err := Apply(s, "alice", frame(t, protocol.EventQuestion, `{"question_id": 4, "question_text": "late push"}`))
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("want ErrSessionEnded, got %v", err)
	}
	if next.HasQuestion || next.Question.Text != "Game over!" {
		t.Fatalf("late question must not mutate ended state, got %+v", next)
	}
}

func TestAnswerResultAttribution(t *testing.T) {
	cases := []struct {
		name     string
		identity string
		payload  string
		wantText string
	}{
		{
			name:     "own result is first person",
			identity: "alice",
			payload:  `{"username": "alice", "status": "correct", "question_id": 1}`,
			wantText: "Your answer is correct.",
		},
		{
			name:     "other player's result is third person",
			identity: "alice",
			payload:  `{"username": "bob", "status": "incorrect", "question_id": 1}`,
			wantText: "bob got the answer incorrect.",
		},
		{
			name:     "stale question id still logged",
			identity: "alice",
			payload:  `{"username": "bob", "status": "correct", "question_id": 99}`,
			wantText: "bob got the answer correct.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := State{Question: QuestionView{ID: "1", Text: "q"}, HasQuestion: true}
			next, err := Apply(s, tc.identity, frame(t, protocol.EventAnswerResult, tc.payload))
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got := lastLog(t, next).Text; got != tc.wantText {
				t.Fatalf("want %q, got %q", tc.wantText, got)
			}
		})
	}
}

func TestAnswerResultsAppendInArrivalOrder(t *testing.T) {
	s := State{}
	var err error
	s, err = Apply(s, "alice", frame(t, protocol.EventAnswerResult, `{"username": "bob", "status": "incorrect", "question_id": 1}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	s, err = Apply(s, "alice", frame(t, protocol.EventAnswerResult, `{"username": "alice", "status": "correct", "question_id": 1}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(s.Log) != 2 {
		t.Fatalf("want 2 entries, got %d", len(s.Log))
	}
	if s.Log[0].Text != "bob got the answer incorrect." || s.Log[1].Text != "Your answer is correct." {
		t.Fatalf("entries out of order: %+v", s.Log)
	}
}

func TestLeaderboardWholesaleReplace(t *testing.T) {
	s := State{Leaderboard: []Entry{{Username: "alice", Score: 400}, {Username: "carol", Score: 50}}}
	next, err := Apply(s, "alice", frame(t, protocol.EventLeaderboard, `{"leaderboard": [["alice", 10], ["bob", 7]]}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []Entry{{Username: "alice", Score: 10}, {Username: "bob", Score: 7}}
	if len(next.Leaderboard) != len(want) {
		t.Fatalf("want %d entries, got %+v", len(want), next.Leaderboard)
	}
	for i := range want {
		if next.Leaderboard[i] != want[i] {
			t.Fatalf("entry %d: want %+v, got %+v", i, want[i], next.Leaderboard[i])
		}
	}
}

func TestLeaderboardDuplicateIdentityKept(t *testing.T) {
	s, err := Apply(State{}, "alice", frame(t, protocol.EventLeaderboard, `{"leaderboard": [["bob", 7], ["bob", 3]]}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(s.Leaderboard) != 2 {
		t.Fatalf("duplicate identities must both be kept, got %+v", s.Leaderboard)
	}
}

func TestRoomMessagesReplaceLog(t *testing.T) {
	s := State{Log: []LogMessage{{Text: "one"}, {Text: "two"}, {Text: "three"}, {Text: "four"}}}
	next, err := Apply(s, "alice", frame(t, protocol.EventRoomMessages,
		`{"messages": [{"username": "bob", "message": "hi"}, {"message": "carol has left the game."}, {"username": "alice", "message": "hello"}]}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(next.Log) != 3 {
		t.Fatalf("want exactly the 3 delivered entries, got %d", len(next.Log))
	}
	if next.Log[0].Username != "bob" || next.Log[1].Username != "" || next.Log[2].Text != "hello" {
		t.Fatalf("unexpected log: %+v", next.Log)
	}
}

func TestUserLeftAppendsAnnouncement(t *testing.T) {
	s, err := Apply(State{}, "alice", frame(t, protocol.EventUserLeft, `{"message": "bob has left the game."}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got := lastLog(t, s)
	if got.Username != "" || got.Text != "bob has left the game." {
		t.Fatalf("want unattributed announcement, got %+v", got)
	}
}

func TestMalformedPayloadsIgnored(t *testing.T) {
	cases := []struct {
		name    string
		event   string
		payload string
	}{
		{"question missing text", protocol.EventQuestion, `{"question_id": 1}`},
		{"question bad json", protocol.EventQuestion, `{`},
		{"answer_result missing status", protocol.EventAnswerResult, `{"username": "bob"}`},
		{"user_left empty", protocol.EventUserLeft, `{}`},
		{"leaderboard bad tuple", protocol.EventLeaderboard, `{"leaderboard": [["alice"]]}`},
		{"game_end empty", protocol.EventGameEnd, `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := State{Question: QuestionView{ID: "1", Text: "q"}, HasQuestion: true}
			next, err := Apply(s, "alice", frame(t, tc.event, tc.payload))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("want ErrMalformedEvent, got %v", err)
			}
			if len(next.Log) != len(s.Log) || next.Question != s.Question || next.Ended {
				t.Fatalf("malformed event must leave state untouched: %+v", next)
			}
		})
	}
}

func TestUnknownEventUnsupported(t *testing.T) {
	_, err := Apply(State{}, "alice", frame(t, "reticulate_splines", `{}`))
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("want ErrUnsupportedEvent, got %v", err)
	}
}

func TestLogTail(t *testing.T) {
	s := State{}
	for _, m := range []string{"a", "b", "c", "d"} {
		s.Log = append(s.Log, LogMessage{Text: m})
	}
	tail := s.LogTail(2)
	if len(tail) != 2 || tail[0].Text != "c" || tail[1].Text != "d" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if got := s.LogTail(10); len(got) != 4 {
		t.Fatalf("tail larger than log should return whole log, got %d", len(got))
	}
}
