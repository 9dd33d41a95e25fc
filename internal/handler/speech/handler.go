package speech

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// Narrator 抽象解读朗读，便于测试与替换实现
type Narrator interface {
	Narration(ctx context.Context) (*dream.Audio, bool, error)
}

// Handler 朗读服务的HTTP处理器
type Handler struct {
	narrator Narrator
}

// New 创建朗读处理器
func New(narrator Narrator) *Handler {
	return &Handler{narrator: narrator}
}

// RegisterRoutes 注册朗读相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/dream/narration", h.handleNarration)
}

type narrationResponse struct {
	*dream.Audio
	Cached bool `json:"cached"`
}

// handleNarration 返回解读的 PCM 音频（base64），首次请求会触发语音合成
func (h *Handler) handleNarration(w http.ResponseWriter, r *http.Request) {
	audio, cached, err := h.narrator.Narration(r.Context())
	if err != nil {
		h.respondNarrationError(w, err)
		return
	}

	log.Printf("[speech] narration served, bytes=%d, cached=%t", len(audio.Data), cached)
	utils.RespondJSON(w, http.StatusOK, narrationResponse{Audio: audio, Cached: cached})
}

func (h *Handler) respondNarrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ai.ErrMissingCredential):
		utils.RespondError(w, http.StatusUnauthorized, ai.Cause(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusRequestTimeout, err.Error())
	default:
		log.Printf("[speech] narration failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, ai.Cause(err))
	}
}
