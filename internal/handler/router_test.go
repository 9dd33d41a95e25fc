package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	credentialstore "github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai/aitest"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
)

func TestRouterEndToEnd(t *testing.T) {
	holder := credentialstore.NewHolder(nil)
	o := pipeline.New(&aitest.Gateway{}, holder, pipeline.Options{})
	t.Cleanup(o.Close)
	router := NewRouter(holder, o)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/dream", strings.NewReader(`{"text":"a dream"}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/credential", strings.NewReader(`{"apiKey":"test-key"}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("credential: expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/dream", strings.NewReader(`{"text":"a dream"}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", resp.Code)
	}

	if _, err := o.AwaitImage(context.Background()); err != nil {
		t.Fatalf("AwaitImage err: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/dream/narration", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("narration: expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d", resp.Code)
	}
}
