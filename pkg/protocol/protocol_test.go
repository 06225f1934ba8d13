package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsFrameWithoutEvent(t *testing.T) {
	_, err := Decode([]byte(`{"data": {"x": 1}}`))
	require.ErrorIs(t, err, ErrEmptyEvent)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestEncodeDecodeFrame(t *testing.T) {
	raw, err := Encode(EventJoin, Join{Username: "alice", SessionID: "session1"})
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, EventJoin, f.Event)

	var join Join
	require.NoError(t, json.Unmarshal(f.Data, &join))
	assert.Equal(t, "alice", join.Username)
	assert.Equal(t, "session1", join.SessionID)
}

func TestIDAcceptsNumberAndString(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"question_id": 3, "question_text": "x"}`), &q))
	assert.Equal(t, ID("3"), q.QuestionID)

	require.NoError(t, json.Unmarshal([]byte(`{"question_id": "q-3", "question_text": "x"}`), &q))
	assert.Equal(t, ID("q-3"), q.QuestionID)
}

func TestIDMarshalsNumericAsNumber(t *testing.T) {
	// Servers that key questions on integers must see a number back.
	raw, err := json.Marshal(CheckAnswer{SessionID: "s", Username: "u", QuestionID: "3", Answer: "12"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"question_id":3`)

	raw, err = json.Marshal(CheckAnswer{SessionID: "s", Username: "u", QuestionID: "q-3", Answer: "12"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"question_id":"q-3"`)
}

func TestLeaderboardTupleWireShape(t *testing.T) {
	var lb Leaderboard
	require.NoError(t, json.Unmarshal([]byte(`{"leaderboard": [["alice", 10], ["bob", 7]]}`), &lb))
	require.Len(t, lb.Leaderboard, 2)
	assert.Equal(t, Entry{Username: "alice", Score: 10}, lb.Leaderboard[0])
	assert.Equal(t, Entry{Username: "bob", Score: 7}, lb.Leaderboard[1])

	raw, err := json.Marshal(lb)
	require.NoError(t, err)
	assert.JSONEq(t, `{"leaderboard": [["alice", 10], ["bob", 7]]}`, string(raw))

	var bad Leaderboard
	require.Error(t, json.Unmarshal([]byte(`{"leaderboard": [["alice"]]}`), &bad))
}

func TestChatMessageOmitsEmptyUsername(t *testing.T) {
	raw, err := json.Marshal(ChatMessage{Message: "carol has left the game."})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"carol has left the game."}`, string(raw))
}
