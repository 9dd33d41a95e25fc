package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// Conversations 提供当前梦境的追问会话
type Conversations interface {
	Conversation(ctx context.Context) (*chatservice.Session, error)
}

// Handler 追问会话的HTTP处理器
type Handler struct {
	conversations Conversations
}

// New 创建会话处理器
func New(conversations Conversations) *Handler {
	return &Handler{conversations: conversations}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handleTranscript)
	r.Post("/chat/messages", h.handleSendMessage)
}

type transcriptResponse struct {
	Session   chat.Session `json:"session"`
	Turns     []chat.Turn  `json:"turns"`
	Streaming bool         `json:"streaming"`
}

// handleTranscript 返回会话记录，首次访问时创建会话
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	session, err := h.conversations.Conversation(r.Context())
	if err != nil {
		RespondSessionError(w, err)
		return
	}

	turns, err := session.Transcript(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcriptResponse{
		Session:   session.Info(),
		Turns:     turns,
		Streaming: session.Streaming(),
	})
}

// handleSendMessage 发送一条追问并等待完整回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.conversations.Conversation(r.Context())
	if err != nil {
		RespondSessionError(w, err)
		return
	}

	sr, err := session.Send(r.Context(), payload.Text)
	if err != nil {
		RespondSessionError(w, err)
		return
	}
	for {
		if _, err := sr.Recv(); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[chat] unexpected stream error: %v", err)
			}
			break
		}
	}
	sr.Close()

	turn, err := session.LastTurn(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, turn)
}

// RespondSessionError 将会话相关错误映射为HTTP状态码
func RespondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrEmptyTurn):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNotReady),
		errors.Is(err, pipeline.ErrDiscarded),
		errors.Is(err, chatservice.ErrTurnInProgress),
		errors.Is(err, chatservice.ErrSessionClosed):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ai.ErrMissingCredential):
		utils.RespondError(w, http.StatusUnauthorized, ai.Cause(err))
	default:
		log.Printf("[chat] conversation unavailable: %v", err)
		utils.RespondError(w, http.StatusBadGateway, ai.Cause(err))
	}
}
