package credential

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// Holder 抽象凭证的读取与修改
type Holder interface {
	Current() credential.Credential
	Set(ctx context.Context, raw string) error
	Clear(ctx context.Context) error
}

// Handler 凭证管理的HTTP处理器
type Handler struct {
	holder Holder
}

// New 创建凭证处理器
func New(holder Holder) *Handler {
	return &Handler{holder: holder}
}

// RegisterRoutes 注册凭证相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/credential", h.handleStatus)
	r.Put("/credential", h.handleSet)
	r.Delete("/credential", h.handleClear)
}

type statusResponse struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

func (h *Handler) status() statusResponse {
	cred := h.holder.Current()
	if cred.Empty() {
		return statusResponse{}
	}
	return statusResponse{Configured: true, Masked: cred.Masked()}
}

// handleStatus 返回是否已配置凭证，不暴露明文
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.status())
}

// handleSet 保存新的凭证
func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.holder.Set(r.Context(), payload.APIKey); err != nil {
		if errors.Is(err, credential.ErrEmpty) {
			utils.RespondError(w, http.StatusBadRequest, "apiKey is required")
			return
		}
		log.Printf("[credential] save failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store credential")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.status())
}

// handleClear 删除凭证
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.holder.Clear(r.Context()); err != nil {
		log.Printf("[credential] clear failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
