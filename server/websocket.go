package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xhad/solar/internal/models"
)

// Message is the websocket frame in both directions. Clients send "chat"
// messages; the server answers with "stream" fragments followed by "done",
// or with "error".
type Message struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	Collection string `json:"collection,omitempty"`
	Model      string `json:"model,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Error reading message", slog.String("error", err.Error()))
			}
			return
		}

		if msg.Type != "" && msg.Type != "chat" {
			s.send(conn, "error", "unsupported message type: "+msg.Type)
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			s.send(conn, "error", "content must not be empty")
			continue
		}

		if !s.handleMessage(r, conn, msg) {
			return
		}
	}
}

// handleMessage answers one chat message. It returns false when the
// connection is no longer writable.
func (s *Server) handleMessage(r *http.Request, conn *websocket.Conn, msg Message) bool {
	ctx := r.Context()

	messages, err := s.ground(ctx, []models.Message{{Role: models.RoleUser, Content: msg.Content}}, msg.Collection)
	if err != nil {
		return s.send(conn, "error", err.Error())
	}

	stream := s.chat.StreamGenerate(ctx, messages, msg.Model)
	defer stream.Close()

	for chunk := range stream.Chunks() {
		if !s.send(conn, "stream", chunk) {
			return false
		}
	}
	if err := stream.Err(); err != nil {
		return s.send(conn, "error", err.Error())
	}
	return s.send(conn, "done", "")
}

func (s *Server) send(conn *websocket.Conn, msgType, content string) bool {
	if err := conn.WriteJSON(Message{Type: msgType, Content: content}); err != nil {
		s.logger.Warn("Error sending message", slog.String("error", err.Error()))
		return false
	}
	return true
}
