// Package roomlist fetches the pre-session lobby's list of open rooms.
package roomlist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the quiz server's HTTP surface.
type Client struct {
	http *http.Client
	base string
}

func New(baseURL string) *Client {
	return &Client{
		http: &http.Client{Timeout: 8 * time.Second},
		base: strings.TrimRight(baseURL, "/"),
	}
}

// Rooms returns the open session ids. Servers answer either
// {"rooms": [...]} or a bare [...]; both shapes occur in practice and both
// are accepted here.
func (c *Client) Rooms(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	return parseRooms(raw)
}

func parseRooms(raw json.RawMessage) ([]string, error) {
	var wrapped struct {
		Rooms []string `json:"rooms"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Rooms != nil {
		return wrapped.Rooms, nil
	}
	var bare []string
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("fetch rooms: unrecognized response shape: %w", err)
	}
	return bare, nil
}
