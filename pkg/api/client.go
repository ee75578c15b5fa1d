package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

const (
	// stateRate caps state pushes per client; pushes in between are coalesced.
	stateRate = 30
	writeWait = 5 * time.Second
	// maxMessageSize bounds a single inbound socket frame.
	maxMessageSize = 4096
)

var errUnknownMessage = errors.New("unknown message type")

// Inbound message types.
const (
	msgPing         = "ping"
	msgPointerDown  = "pointer_down"
	msgPointerMove  = "pointer_move"
	msgPointerUp    = "pointer_up"
	msgPointerLeave = "pointer_leave"
	msgWheel        = "wheel"
	msgZoom         = "zoom"
	msgReset        = "reset"
	msgAutoFrame    = "auto_frame"
)

// clientMessage is an input event sent by the browser page. X and Y are in
// frame pixels.
type clientMessage struct {
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Delta float64 `json:"delta"`
	Value float64 `json:"value"`
}

// stateMessage carries a session snapshot to the page.
type stateMessage struct {
	Type string `json:"type"`
	frame.Snapshot
}

type replyMessage struct {
	Type           string `json:"type"`
	Error          string `json:"error,omitempty"`
	PreventDefault bool   `json:"preventDefault,omitempty"`
}

// client is one connected socket.
type client struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter
	notify  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(stateRate), 1),
		notify:  make(chan struct{}, 1),
	}
}

// queue asks for a state push without blocking. Pending pushes collapse
// into one.
func (c *client) queue() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// writeLoop sends the latest snapshot each time the client is notified, no
// faster than the client's limiter allows.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		msg := stateMessage{Type: "state", Snapshot: s.session.Snapshot()}
		if err := c.writeJSON(msg); err != nil {
			log.Printf("Failed to push state to client %s: %v", c.id, err)
			c.close()
			return
		}
	}
}

// readLoop applies input events until the socket closes.
func (s *Server) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client %s read failed: %v", c.id, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if werr := c.writeJSON(replyMessage{Type: "error", Error: "malformed message"}); werr != nil {
				return
			}
			continue
		}

		reply, err := s.handleMessage(ctx, msg)
		if err != nil {
			reply = replyMessage{Type: "error", Error: err.Error()}
		}
		if reply.Type == "" {
			continue
		}
		if err := c.writeJSON(reply); err != nil {
			return
		}
	}
}

// handleMessage maps one input event onto the session. State changes reach
// the client through the broadcast, so most events have no direct reply.
func (s *Server) handleMessage(ctx context.Context, msg clientMessage) (replyMessage, error) {
	var err error
	switch msg.Type {
	case msgPing:
		return replyMessage{Type: "pong"}, nil
	case msgPointerDown:
		err = s.session.PointerDown(msg.X, msg.Y)
	case msgPointerMove:
		_, err = s.session.PointerMove(msg.X, msg.Y)
	case msgPointerUp:
		s.session.PointerUp()
	case msgPointerLeave:
		s.session.PointerLeave()
	case msgWheel:
		// The page needs preventDefault even when the wheel did nothing.
		prevent, werr := s.session.Wheel(msg.Delta)
		reply := replyMessage{Type: "wheel", PreventDefault: prevent}
		if werr != nil {
			reply.Error = werr.Error()
		}
		return reply, nil
	case msgZoom:
		_, err = s.session.SetZoom(msg.Value)
	case msgReset:
		_, err = s.session.ResetView()
	case msgAutoFrame:
		_, err = s.session.AutoFrame(ctx)
	default:
		err = fmt.Errorf("%w: %q", errUnknownMessage, msg.Type)
	}
	return replyMessage{}, err
}
