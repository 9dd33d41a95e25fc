package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/zhouzirui/lucid-weaver/backend/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Addr: "127.0.0.1:0"},
		Gemini:   config.GeminiConfig{APIKey: "env-key"},
		Storage:  config.StorageConfig{DataDir: t.TempDir()},
		Pipeline: config.PipelineConfig{ImageFailurePolicy: "keep"},
	}
}

func TestNewRestoresFallbackCredential(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer a.Close()

	if a.Credentials.Current() != "env-key" {
		t.Fatalf("expected fallback credential, got %q", a.Credentials.Current())
	}
}

func TestNewPrefersStoredCredential(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if err := first.Credentials.Set(context.Background(), "stored-key"); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	first.Close()

	second, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer second.Close()

	if second.Credentials.Current() != "stored-key" {
		t.Fatalf("expected stored credential, got %q", second.Credentials.Current())
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ImageFailurePolicy = "retry"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
