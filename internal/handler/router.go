package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/lucid-weaver/backend/internal/handler/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/handler/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/handler/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/handler/speech"
	"github.com/zhouzirui/lucid-weaver/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/lucid-weaver/backend/internal/middleware"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
	"github.com/zhouzirui/lucid-weaver/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(creds credential.Holder, orchestrator *pipeline.Orchestrator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		credential.New(creds).RegisterRoutes(api)
		dream.New(orchestrator).RegisterRoutes(api)
		speech.New(orchestrator).RegisterRoutes(api)
		chat.New(orchestrator).RegisterRoutes(api)
		stream.New(orchestrator).RegisterRoutes(api)
	})

	return r
}
