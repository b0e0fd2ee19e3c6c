// Package leanclient provides a Go client for a Lean Coffee server. It
// keeps a local copy of one board in sync with the server's room-scoped
// event stream and exposes mutation intents.
//
// The client is thread-safe. Incoming events are applied idempotently,
// so receiving the broadcast for one's own mutation is harmless.
package leanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrorAck is a server acknowledgment of a failed intent.
type ErrorAck struct {
	Intent  string `json:"intent"`
	Message string `json:"message"`
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client connects to a Lean Coffee server over HTTP and WebSocket.
type Client struct {
	baseURL string
	httpc   *http.Client

	conn    *websocket.Conn
	writeMu sync.Mutex

	state boardState

	mu       sync.Mutex
	onUpdate func(Board)
	onError  func(ErrorAck)

	done chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for direct requests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// Dial connects to the server at baseURL (e.g. "http://localhost:4000")
// and opens the WebSocket event stream.
func Dial(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	c.conn = conn

	go c.readLoop()
	return c, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Close closes the event stream. The client is unusable afterwards.
func (c *Client) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.conn.Close()
}

// OnUpdate registers a callback invoked with a fresh snapshot every time
// the local board view changes.
func (c *Client) OnUpdate(fn func(Board)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// OnError registers a callback for server error acknowledgments.
func (c *Client) OnError(fn func(ErrorAck)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// CreateBoard creates a new board. It does not join it; call Join with
// the returned id.
func (c *Client) CreateBoard(ctx context.Context, title string) (*Board, error) {
	var board Board
	if err := c.post(ctx, "/boards", map[string]string{"title": title}, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// Join makes boardID the active board: it fetches the full aggregate
// directly over HTTP, then subscribes to the board's room. Joining a
// different board replaces the active view and re-subscribes.
func (c *Client) Join(ctx context.Context, boardID string) (*Board, error) {
	board, err := c.FetchBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.state.set(*board)

	if err := c.sendIntent("board:join", map[string]string{"boardId": boardID}); err != nil {
		return nil, err
	}
	c.notify()
	return board, nil
}

// FetchBoard retrieves a board aggregate without changing the active
// subscription.
func (c *Client) FetchBoard(ctx context.Context, boardID string) (*Board, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/boards/"+boardID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var board Board
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}
	return &board, nil
}

// AddTopic creates a topic on the active board via the request channel.
// The topic reaches the local view through the room broadcast, applied
// idempotently alongside the returned value.
func (c *Client) AddTopic(ctx context.Context, title string) (*Topic, error) {
	board, ok := c.state.snapshot()
	if !ok {
		return nil, fmt.Errorf("no active board, call Join first")
	}

	var topic Topic
	err := c.post(ctx, "/topics", map[string]string{
		"boardId": board.ID,
		"title":   title,
	}, &topic)
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// Vote casts a vote for a topic on the active board.
func (c *Client) Vote(topicID string) error {
	return c.activeIntent("topic:vote", map[string]interface{}{"topicId": topicID})
}

// SetDiscussed marks a topic discussed or not.
func (c *Client) SetDiscussed(topicID string, discussed bool) error {
	return c.activeIntent("topic:discussed", map[string]interface{}{
		"topicId":   topicID,
		"discussed": discussed,
	})
}

// SetStage moves the active board to a new facilitation stage.
func (c *Client) SetStage(stage Stage) error {
	return c.activeIntent("board:stage", map[string]interface{}{"stage": stage})
}

// SetTimer sets the shared countdown target; nil clears it. Remaining
// time is computed locally against the target, the server never expires
// it.
func (c *Client) SetTimer(timerEnd *time.Time) error {
	return c.activeIntent("board:timer", map[string]interface{}{"timerEnd": timerEnd})
}

// Snapshot returns a copy of the active board with topics in display
// order. The second return is false before the first Join.
func (c *Client) Snapshot() (Board, bool) {
	return c.state.snapshot()
}

func (c *Client) activeIntent(intent string, payload map[string]interface{}) error {
	board, ok := c.state.snapshot()
	if !ok {
		return fmt.Errorf("no active board, call Join first")
	}
	payload["boardId"] = board.ID
	return c.sendIntent(intent, payload)
}

func (c *Client) sendIntent(intent string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", intent, err)
	}
	frame, err := json.Marshal(envelope{Type: intent, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", intent, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		if env.Type == "error" {
			var ack ErrorAck
			if json.Unmarshal(env.Data, &ack) == nil {
				c.mu.Lock()
				fn := c.onError
				c.mu.Unlock()
				if fn != nil {
					fn(ack)
				}
			}
			continue
		}

		changed, err := c.state.apply(env.Type, env.Data)
		if err != nil || !changed {
			continue
		}
		c.notify()
	}
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn == nil {
		return
	}
	if board, ok := c.state.snapshot(); ok {
		fn(board)
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
