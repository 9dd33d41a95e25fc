// Package app assembles the dream pipeline from configuration and serves it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/lucid-weaver/backend/internal/config"
	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/handler"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
)

// App owns the long-lived services of one process.
type App struct {
	Config      *config.Config
	Credentials *credential.Holder
	Gateway     *ai.Service
	Pipeline    *pipeline.Orchestrator
}

// New restores the credential and builds the gateway and pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store := credential.NewBoltStore(cfg.Storage.CredentialPath())
	holder := credential.NewHolder(store)
	if err := holder.Restore(ctx, credential.Credential(cfg.Gemini.APIKey)); err != nil {
		return nil, err
	}
	if !holder.Configured() {
		log.Println("Gemini 凭证未配置，可通过 PUT /api/credential 或 weaver key set 设置")
	}

	policy, err := pipeline.ParseImageFailurePolicy(cfg.Pipeline.ImageFailurePolicy)
	if err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	gateway := ai.NewService(gatewayOptions(cfg))
	orchestrator := pipeline.New(gateway, holder, pipeline.Options{ImageFailurePolicy: policy})

	return &App{
		Config:      cfg,
		Credentials: holder,
		Gateway:     gateway,
		Pipeline:    orchestrator,
	}, nil
}

func gatewayOptions(cfg *config.Config) ai.Options {
	opts := ai.Options{
		BaseURL:        cfg.Gemini.BaseURL,
		InterpretModel: cfg.Gemini.InterpretModel,
		ChatModel:      cfg.Gemini.ChatModel,
		ImageModel:     cfg.Gemini.ImageModel,
		SpeechModel:    cfg.Gemini.SpeechModel,
		SpeechVoice:    cfg.Gemini.SpeechVoice,
		AspectRatio:    cfg.Gemini.AspectRatio,
	}

	if cfg.AI.Enabled() {
		arkCfg := cfg.AI
		opts.TextModel = func(ctx context.Context, _ credential.Credential, _ string) (model.ChatModel, error) {
			return arkCfg.NewChatModel(ctx)
		}
		log.Printf("text generation uses Ark model %s", arkCfg.Model)
	}
	return opts
}

// Close stops background pipeline work.
func (a *App) Close() {
	a.Pipeline.Close()
}

// Router returns the HTTP API.
func (a *App) Router() http.Handler {
	return handler.NewRouter(a.Credentials, a.Pipeline)
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	addr := a.Config.Server.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Lucid Weaver backend listening on %s", addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
