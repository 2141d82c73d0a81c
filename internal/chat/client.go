// Package chat talks to a OneBot v11 endpoint over WebSocket: group and
// private messages, merged-forward bundles, and message recall.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Segment is one OneBot message segment.
type Segment struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// TextSeg builds a plain text segment.
func TextSeg(text string) Segment {
	return Segment{Type: "text", Data: map[string]interface{}{"text": text}}
}

// AtSeg builds an @-mention segment.
func AtSeg(userID string) Segment {
	return Segment{Type: "at", Data: map[string]interface{}{"qq": userID}}
}

// ReplySeg builds a quote-reply segment.
func ReplySeg(messageID int64) Segment {
	return Segment{Type: "reply", Data: map[string]interface{}{"id": messageID}}
}

// NodeSeg builds a custom forward node carrying nested segments.
func NodeSeg(name, uin string, content []Segment) Segment {
	return Segment{Type: "node", Data: map[string]interface{}{
		"name": name, "uin": uin, "content": content,
	}}
}

type actionFrame struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
	Echo   string                 `json:"echo"`
}

type responseFrame struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
	Message string          `json:"message"`
	// Event fields, present when the frame is a push rather than a reply.
	PostType string `json:"post_type"`
}

// EventHandler receives raw OneBot event frames (message, notice, ...).
type EventHandler func(event map[string]interface{})

// Client is a OneBot v11 WebSocket client with echo-correlated calls and
// automatic reconnect. Safe for concurrent use.
type Client struct {
	url         string
	accessToken string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *responseFrame

	handler EventHandler
	closed  chan struct{}
	once    sync.Once
}

// NewClient prepares a client for the given ws:// endpoint.
func NewClient(url, accessToken string) *Client {
	return &Client{
		url:         url,
		accessToken: accessToken,
		pending:     make(map[string]chan *responseFrame),
		closed:      make(chan struct{}),
	}
}

// OnEvent registers the push-event handler. Must be called before Run.
func (c *Client) OnEvent(h EventHandler) { c.handler = h }

// Run connects and reads frames until ctx is cancelled, reconnecting
// with capped backoff on failure.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			slog.Warn("chat connect failed", "url", c.url, "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		c.readLoop(ctx)
	}
}

// Close shuts the client down.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.accessToken != "" {
		header.Set("Authorization", "Bearer "+c.accessToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	slog.Info("chat connected", "url", c.url)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("chat read failed", "error", err)
			c.failPending()
			return
		}

		var frame responseFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		if frame.Echo != "" {
			c.mu.Lock()
			ch, ok := c.pending[frame.Echo]
			delete(c.pending, frame.Echo)
			c.mu.Unlock()
			if ok {
				ch <- &frame
			}
			continue
		}

		if frame.PostType != "" && c.handler != nil {
			var event map[string]interface{}
			if err := json.Unmarshal(raw, &event); err == nil {
				go c.handler(event)
			}
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
}

// call sends one action frame and waits for its echo-matched reply.
func (c *Client) call(ctx context.Context, action string, params map[string]interface{}) (json.RawMessage, error) {
	echo := uuid.NewString()[:8]
	ch := make(chan *responseFrame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: not connected", action)
	}
	c.pending[echo] = ch
	err := conn.WriteJSON(actionFrame{Action: action, Params: params, Echo: echo})
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: write: %w", action, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: connection lost", action)
		}
		if resp.Status == "failed" || resp.RetCode != 0 {
			return nil, fmt.Errorf("%s: retcode %d: %s", action, resp.RetCode, resp.Message)
		}
		return resp.Data, nil
	}
}

type messageIDData struct {
	MessageID int64 `json:"message_id"`
}

// SendGroupMsg sends segments to a group and returns the message id.
func (c *Client) SendGroupMsg(ctx context.Context, groupID string, segments []Segment) (int64, error) {
	data, err := c.call(ctx, "send_group_msg", map[string]interface{}{
		"group_id": groupID,
		"message":  segments,
	})
	if err != nil {
		return 0, err
	}
	var out messageIDData
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("send_group_msg: decode: %w", err)
	}
	return out.MessageID, nil
}

// SendPrivateMsg sends segments to a user and returns the message id.
func (c *Client) SendPrivateMsg(ctx context.Context, userID string, segments []Segment) (int64, error) {
	data, err := c.call(ctx, "send_private_msg", map[string]interface{}{
		"user_id": userID,
		"message": segments,
	})
	if err != nil {
		return 0, err
	}
	var out messageIDData
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("send_private_msg: decode: %w", err)
	}
	return out.MessageID, nil
}

// SendGroupForwardMsg sends a merged-forward bundle and returns its id.
func (c *Client) SendGroupForwardMsg(ctx context.Context, groupID string, nodes []Segment) (int64, error) {
	data, err := c.call(ctx, "send_group_forward_msg", map[string]interface{}{
		"group_id": groupID,
		"messages": nodes,
	})
	if err != nil {
		return 0, err
	}
	var out messageIDData
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("send_group_forward_msg: decode: %w", err)
	}
	return out.MessageID, nil
}

// DeleteMsg recalls a previously sent message.
func (c *Client) DeleteMsg(ctx context.Context, messageID int64) error {
	_, err := c.call(ctx, "delete_msg", map[string]interface{}{"message_id": messageID})
	return err
}
