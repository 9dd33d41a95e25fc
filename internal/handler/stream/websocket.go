package stream

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	chathandler "github.com/zhouzirui/lucid-weaver/backend/internal/handler/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Text      string      `json:"text,omitempty"`
	Turn      *chat.Turn  `json:"turn,omitempty"`
	Turns     []chat.Turn `json:"turns,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接，每条 message 消息触发一轮追问
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := h.conversations.Conversation(r.Context())
	if err != nil {
		chathandler.RespondSessionError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := session.Info().ID
	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	turns, err := session.Transcript(ctx)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return
	}
	h.send(conn, outgoingMessage{Type: "connected", SessionID: sessionID, Turns: turns})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			if err := h.handleTurn(ctx, conn, session, msg.Text); err != nil {
				log.Printf("[websocket] session=%s: %v", sessionID, err)
				return
			}
		default:
			h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
		}
	}
}

// handleTurn 转发一轮回复。返回的错误表示连接已不可写
func (h *Handler) handleTurn(ctx context.Context, conn *websocket.Conn, session *chatservice.Session, text string) error {
	sessionID := session.Info().ID

	sr, err := session.Send(ctx, text)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return nil
	}

	return h.forward(ctx, session, sr, func(resp StreamResponse) error {
		return conn.WriteJSON(outgoingMessage{
			Type:      resp.Event,
			SessionID: resp.SessionID,
			Text:      resp.Content,
			Turn:      resp.Turn,
			Error:     resp.Error,
			Timestamp: time.Now().Unix(),
		})
	})
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, outgoingMessage{Type: "error", SessionID: sessionID, Error: message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
