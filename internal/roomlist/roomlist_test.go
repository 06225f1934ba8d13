package roomlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestRoomsWrappedShape(t *testing.T) {
	c := serve(t, http.StatusOK, `{"rooms": ["session1", "trivia-night"]}`)
	rooms, err := c.Rooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"session1", "trivia-night"}, rooms)
}

func TestRoomsBareArrayShape(t *testing.T) {
	c := serve(t, http.StatusOK, `["session1", "session2"]`)
	rooms, err := c.Rooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"session1", "session2"}, rooms)
}

func TestRoomsEmpty(t *testing.T) {
	c := serve(t, http.StatusOK, `{"rooms": []}`)
	rooms, err := c.Rooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestRoomsServerError(t *testing.T) {
	c := serve(t, http.StatusInternalServerError, `boom`)
	_, err := c.Rooms(context.Background())
	require.Error(t, err)
}

func TestRoomsUnrecognizedShape(t *testing.T) {
	c := serve(t, http.StatusOK, `{"sessions": 3}`)
	_, err := c.Rooms(context.Background())
	require.Error(t, err)
}
