package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chathandler "github.com/zhouzirui/lucid-weaver/backend/internal/handler/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// Handler streams follow-up replies over Server-Sent Events and WebSocket.
type Handler struct {
	conversations chathandler.Conversations
	upgrader      websocket.Upgrader
}

// New creates a new stream handler
func New(conversations chathandler.Conversations) *Handler {
	return &Handler{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the streaming endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/stream", h.handleStream)
	r.Get("/chat/ws", h.handleWebSocket)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string     `json:"event"`
	Content   string     `json:"content,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Turn      *chat.Turn `json:"turn,omitempty"`
	Finished  bool       `json:"finished,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	ctx := r.Context()
	session, err := h.conversations.Conversation(ctx)
	if err != nil {
		chathandler.RespondSessionError(w, err)
		return
	}

	sr, err := session.Send(ctx, message)
	if err != nil {
		chathandler.RespondSessionError(w, err)
		return
	}

	sse, err := utils.NewSSEStream(w)
	if err != nil {
		sr.Close()
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.forward(ctx, session, sr, func(resp StreamResponse) error {
		return sse.Event(resp.Event, resp)
	}); err != nil {
		log.Printf("[stream] session=%s: %v", session.Info().ID, err)
		return
	}
	log.Printf("[stream] completed reply for session=%s", session.Info().ID)
}

// forward relays one turn: start, one delta per fragment, the committed
// assistant turn as message, then end.
func (h *Handler) forward(ctx context.Context, session *chatservice.Session, sr *schema.StreamReader[string], emit func(StreamResponse) error) error {
	defer sr.Close()

	sessionID := session.Info().ID
	if err := emit(StreamResponse{Event: "start", SessionID: sessionID}); err != nil {
		return err
	}

	for {
		fragment, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			emit(StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
			return err
		}
		if err := emit(StreamResponse{Event: "delta", SessionID: sessionID, Content: fragment}); err != nil {
			return err
		}
	}

	turn, err := session.LastTurn(ctx)
	if err != nil {
		emit(StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
		return err
	}
	if err := emit(StreamResponse{Event: "message", SessionID: sessionID, Content: turn.Text, Turn: &turn}); err != nil {
		return err
	}
	return emit(StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
}
