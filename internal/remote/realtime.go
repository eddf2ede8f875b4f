package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ChangeEvent is one inbound change from the realtime feed
type ChangeEvent struct {
	Table     string         `json:"table"`
	Operation string         `json:"operation"` // insert, update, delete
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}

// ClientID returns the client identifier embedded in the event record, or ""
func (e ChangeEvent) ClientID() string {
	if id, ok := e.Record["client_id"].(string); ok {
		return id
	}
	if id, ok := e.OldRecord["client_id"].(string); ok {
		return id
	}
	return ""
}

// RecordID returns the primary id of the changed row, falling back to the
// prior record on deletes
func (e ChangeEvent) RecordID() string {
	if id, ok := e.Record["id"].(string); ok {
		return id
	}
	if id, ok := e.OldRecord["id"].(string); ok {
		return id
	}
	return ""
}

type subscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
}

// RealtimeClient subscribes to per-table change channels over a websocket
type RealtimeClient struct {
	url    string
	apiKey string
	logger *logrus.Logger
}

// NewRealtimeClient creates a realtime feed client
func NewRealtimeClient(url, apiKey string, logger *logrus.Logger) *RealtimeClient {
	return &RealtimeClient{url: url, apiKey: apiKey, logger: logger}
}

// Subscribe opens the feed and subscribes to the given tables. Events are
// delivered on the returned channel until ctx is cancelled or the connection
// drops; the channel is closed in both cases.
func (c *RealtimeClient) Subscribe(ctx context.Context, tables []string) (<-chan ChangeEvent, error) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, &TransientError{Op: "realtime dial", Err: err}
	}

	for _, table := range tables {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Table: table}); err != nil {
			conn.Close()
			return nil, &TransientError{Op: "realtime subscribe", Err: fmt.Errorf("table %s: %w", table, err)}
		}
	}

	events := make(chan ChangeEvent, 64)
	go c.readLoop(ctx, conn, events)
	go c.pingLoop(ctx, conn)
	return events, nil
}

func (c *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- ChangeEvent) {
	defer close(events)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Warn("realtime connection lost")
			}
			return
		}

		var event ChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.WithError(err).Warn("discarding malformed realtime frame")
			continue
		}
		if event.Table == "" || event.Operation == "" {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (c *RealtimeClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
