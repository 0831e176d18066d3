package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/courseqa/internal/models"
)

// Message is the WebSocket frame in both directions. Clients send
// {"type":"query","content":question,"image":optional}; the server answers
// with "status", then "response" (Data holds the answer) or "error".
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Image   *string     `json:"image,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := requestID(r.Context())
	ws := &wsConn{conn: conn}

	// Queries outlive the handshake request; they end with the connection.
	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.SetLimit(s.config.MaxConnQueries)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "request_id", id, "error", err)
			}
			return
		}
		if msg.Type != "" && msg.Type != "query" {
			s.sendMessage(ws, Message{Type: "error", Content: "unknown message type " + msg.Type})
			continue
		}

		// Blocks once the connection is at its limit.
		g.Go(func() error {
			s.handleMessage(ctx, ws, id, msg)
			return nil
		})
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, id string, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic recovered",
				"request_id", id,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			body := internalError()
			s.sendMessage(ws, Message{Type: "error", Content: body.Message, Data: body})
		}
	}()

	q, err := s.buildQuery(msg.Content, msg.Image)
	if err != nil {
		_, body := classify(err)
		s.sendMessage(ws, Message{Type: "error", Content: body.Message, Data: body})
		return
	}

	s.sendMessage(ws, Message{Type: "status", Content: "Searching course material"})
	answer, err := s.answerer.Answer(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("websocket query failed", "request_id", id, "error", err)
		}
		s.sendMessage(ws, Message{Type: "error", Content: body.Message, Data: body})
		return
	}

	answer = models.NewParsedAnswer(answer.Answer, answer.Links)
	s.sendMessage(ws, Message{Type: "response", Content: answer.Answer, Data: answer})
}

func (s *Server) sendMessage(ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.log.Debug("websocket send failed", "type", msg.Type, "error", err)
	}
}
