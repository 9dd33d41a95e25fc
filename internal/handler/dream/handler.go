package dream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/lucid-weaver/backend/internal/analysis/markdown"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// Pipeline 抽象流水线，便于测试与替换实现
type Pipeline interface {
	Submit(ctx context.Context, text string) (dream.Snapshot, error)
	Reset() dream.Snapshot
	Snapshot() dream.Snapshot
	Changed() <-chan struct{}
	Record() (dream.Record, bool)
	Image() (dream.Image, bool)
}

// Handler 梦境流水线的HTTP处理器
type Handler struct {
	pipeline  Pipeline
	heartbeat time.Duration
}

// New 创建梦境处理器
func New(p Pipeline) *Handler {
	return &Handler{pipeline: p, heartbeat: 15 * time.Second}
}

// RegisterRoutes 注册梦境相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dream", func(dr chi.Router) {
		dr.Get("/", h.handleSnapshot)
		dr.Post("/", h.handleSubmit)
		dr.Post("/reset", h.handleReset)
		dr.Get("/events", h.handleEvents)
		dr.Get("/image", h.handleImage)
		dr.Get("/outline", h.handleOutline)
	})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.pipeline.Snapshot())
}

// handleSubmit 提交梦境描述，解读完成后返回快照；失败也以快照形式返回
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.pipeline.Submit(r.Context(), payload.Text)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, snap)
	case errors.Is(err, pipeline.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ai.ErrMissingCredential):
		utils.RespondJSON(w, http.StatusUnauthorized, snap)
	default:
		log.Printf("[dream] submit finished with %v", err)
		utils.RespondJSON(w, http.StatusOK, snap)
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.pipeline.Reset())
}

// handleEvents 以SSE推送每一次状态变化
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream, err := utils.NewSSEStream(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	first, sent := true, uint64(0)
	for {
		changed := h.pipeline.Changed()
		snap := h.pipeline.Snapshot()
		if first || snap.Version != sent {
			first = false
			if err := stream.Event("snapshot", snap); err != nil {
				log.Printf("[sse] write snapshot failed: %v", err)
				return
			}
			sent = snap.Version
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case t := <-ticker.C:
			if err := stream.Comment("heartbeat " + strconv.FormatInt(t.Unix(), 10)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleImage(w http.ResponseWriter, _ *http.Request) {
	img, ok := h.pipeline.Image()
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "image is not available")
		return
	}

	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		log.Printf("[dream] write image failed: %v", err)
	}
}

func (h *Handler) handleOutline(w http.ResponseWriter, _ *http.Request) {
	record, ok := h.pipeline.Record()
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "no interpreted dream")
		return
	}
	utils.RespondJSON(w, http.StatusOK, markdown.Parse(record.Interpretation))
}
