package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai/aitest"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
)

type staticCreds credential.Credential

func (c staticCreds) Current() credential.Credential { return credential.Credential(c) }

func newOrchestrator(t *testing.T, gw *aitest.Gateway, opts pipeline.Options) *pipeline.Orchestrator {
	t.Helper()
	o := pipeline.New(gw, staticCreds("test-key"), opts)
	t.Cleanup(o.Close)
	return o
}

func waitFor(t *testing.T, o *pipeline.Orchestrator, cond func(dream.Snapshot) bool) dream.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		changed := o.Changed()
		snap := o.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-changed:
		case <-timeout:
			t.Fatalf("condition not reached, last snapshot: %+v", snap)
		}
	}
}

func TestSubmitInterpretsThenGeneratesImage(t *testing.T) {
	gw := &aitest.Gateway{
		InterpretFunc: func(context.Context, credential.Credential, string) (string, error) {
			return "# Dream Interpretation\n\n## Core Emotional Theme\n\nFreedom.", nil
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	snap, err := o.Submit(context.Background(), "I was flying over a city made of glass")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if snap.State != dream.StateReady {
		t.Fatalf("expected ready, got %s", snap.State)
	}
	if snap.Record == nil || !strings.Contains(snap.Record.Interpretation, "# Dream Interpretation") {
		t.Fatalf("unexpected record: %+v", snap.Record)
	}
	interpretation := snap.Record.Interpretation

	img, err := o.AwaitImage(context.Background())
	if err != nil {
		t.Fatalf("AwaitImage err: %v", err)
	}
	if img.Empty() || img.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected image: %+v", img)
	}

	after := o.Snapshot()
	if after.Record.ImagePending || !after.Record.ImageReady {
		t.Fatalf("expected image to be ready: %+v", after.Record)
	}
	if after.Record.Interpretation != interpretation {
		t.Fatal("interpretation changed after image arrived")
	}
	if after.Version <= snap.Version {
		t.Fatalf("expected version to grow, got %d after %d", after.Version, snap.Version)
	}
	if gw.ImageCalls() != 1 {
		t.Fatalf("expected exactly one image call, got %d", gw.ImageCalls())
	}
}

func TestSubmitInterpretationFailure(t *testing.T) {
	gw := &aitest.Gateway{
		InterpretFunc: func(context.Context, credential.Credential, string) (string, error) {
			return "", &ai.OperationError{Op: ai.OpInterpret, Err: errors.New("quota exceeded")}
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	snap, err := o.Submit(context.Background(), "a dream")
	if err == nil {
		t.Fatal("expected error")
	}
	if snap.State != dream.StateFailed || snap.Failure == nil {
		t.Fatalf("expected failed snapshot, got %+v", snap)
	}
	if snap.Failure.Message != "Failed to interpret your dream. quota exceeded" {
		t.Fatalf("unexpected message: %q", snap.Failure.Message)
	}
	if snap.Failure.Kind != dream.FailureUpstream {
		t.Fatalf("unexpected kind: %s", snap.Failure.Kind)
	}
	if gw.ImageCalls() != 0 {
		t.Fatalf("expected no image call, got %d", gw.ImageCalls())
	}
}

func TestSubmitEmptyInput(t *testing.T) {
	gw := &aitest.Gateway{}
	o := newOrchestrator(t, gw, pipeline.Options{})

	snap, err := o.Submit(context.Background(), "   \n\t ")
	if !errors.Is(err, pipeline.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if snap.State != dream.StateFailed || snap.Failure.Kind != dream.FailureEmptyInput {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Failure.Message != "Dream description was empty. Please try again." {
		t.Fatalf("unexpected message: %q", snap.Failure.Message)
	}
	if gw.InterpretCalls() != 0 || gw.ImageCalls() != 0 {
		t.Fatal("expected no gateway calls")
	}
}

func TestSubmitAfterFailureClearsFailure(t *testing.T) {
	release := make(chan struct{})
	gw := &aitest.Gateway{
		InterpretFunc: func(ctx context.Context, _ credential.Credential, _ string) (string, error) {
			select {
			case <-release:
				return "# Dream Interpretation", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	if _, err := o.Submit(context.Background(), "   "); !errors.Is(err, pipeline.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}

	done := make(chan dream.Snapshot, 1)
	go func() {
		snap, err := o.Submit(context.Background(), "I was flying over a city made of glass")
		if err != nil {
			t.Errorf("Submit err: %v", err)
		}
		done <- snap
	}()

	processing := waitFor(t, o, func(s dream.Snapshot) bool { return s.State == dream.StateProcessing })
	if processing.Failure != nil {
		t.Fatalf("processing snapshot still carries failure: %+v", processing.Failure)
	}

	close(release)
	ready := <-done
	if ready.State != dream.StateReady {
		t.Fatalf("expected ready, got %s", ready.State)
	}
	if ready.Failure != nil {
		t.Fatalf("ready snapshot still carries failure: %+v", ready.Failure)
	}
}

func TestSubmitMissingCredential(t *testing.T) {
	gw := &aitest.Gateway{}
	o := pipeline.New(gw, staticCreds(""), pipeline.Options{})
	t.Cleanup(o.Close)

	snap, err := o.Submit(context.Background(), "a dream")
	if !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if snap.Failure == nil || snap.Failure.Kind != dream.FailureMissingCredential {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if gw.InterpretCalls() != 0 {
		t.Fatal("expected no gateway call without credential")
	}
}

func TestSubmitWhileProcessingIsBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &aitest.Gateway{
		InterpretFunc: func(ctx context.Context, _ credential.Credential, _ string) (string, error) {
			close(started)
			select {
			case <-release:
				return "# Dream Interpretation", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "first dream")
		errCh <- err
	}()
	<-started

	snap, err := o.Submit(context.Background(), "second dream")
	if !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if snap.State != dream.StateProcessing {
		t.Fatalf("busy submit must not change state, got %s", snap.State)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Submit err: %v", err)
	}
	if gw.InterpretCalls() != 1 {
		t.Fatalf("expected one interpret call, got %d", gw.InterpretCalls())
	}
}

func TestResetDuringInterpretationDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	gw := &aitest.Gateway{
		InterpretFunc: func(ctx context.Context, _ credential.Credential, _ string) (string, error) {
			close(started)
			<-ctx.Done()
			return "late interpretation", nil
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "a dream")
		errCh <- err
	}()
	<-started

	if snap := o.Reset(); snap.State != dream.StateIdle {
		t.Fatalf("expected idle after reset, got %s", snap.State)
	}
	if err := <-errCh; !errors.Is(err, pipeline.ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", err)
	}

	snap := o.Snapshot()
	if snap.State != dream.StateIdle || snap.Record != nil {
		t.Fatalf("stale interpretation leaked into state: %+v", snap)
	}
	if gw.ImageCalls() != 0 {
		t.Fatal("expected no image call for a discarded dream")
	}
}

func TestStaleImageCompletionIsDropped(t *testing.T) {
	release := make(chan struct{})
	gw := &aitest.Gateway{
		GenerateImageFunc: func(context.Context, credential.Credential, string) (*dream.Image, error) {
			<-release
			return &dream.Image{Data: []byte{1}, MIMEType: "image/jpeg"}, nil
		},
	}
	o := pipeline.New(gw, staticCreds("test-key"), pipeline.Options{})

	if _, err := o.Submit(context.Background(), "a dream"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	o.Reset()
	before := o.Snapshot()

	close(release)
	o.Close()

	after := o.Snapshot()
	if after.State != dream.StateIdle || after.Record != nil {
		t.Fatalf("stale image changed state: %+v", after)
	}
	if _, ok := o.Image(); ok {
		t.Fatal("stale image must not be stored")
	}
	if after.Version < before.Version {
		t.Fatal("version went backwards")
	}
}

func TestImageFailureReplacesReadyView(t *testing.T) {
	gw := &aitest.Gateway{
		GenerateImageFunc: func(context.Context, credential.Credential, string) (*dream.Image, error) {
			return nil, &ai.OperationError{Op: ai.OpGenerateImage, Err: ai.ErrBlocked}
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{})

	if _, err := o.Submit(context.Background(), "a dream"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if _, err := o.AwaitImage(context.Background()); !errors.Is(err, pipeline.ErrImageFailed) {
		t.Fatalf("expected ErrImageFailed, got %v", err)
	}

	snap := waitFor(t, o, func(s dream.Snapshot) bool { return s.State == dream.StateFailed })
	if snap.Failure.Kind != dream.FailureBlocked {
		t.Fatalf("unexpected kind: %s", snap.Failure.Kind)
	}
	if !strings.HasPrefix(snap.Failure.Message, "Failed to generate the dream image. ") {
		t.Fatalf("unexpected message: %q", snap.Failure.Message)
	}
	if snap.Record != nil {
		t.Fatal("expected record to be discarded")
	}
}

func TestImageFailureKeepPolicy(t *testing.T) {
	gw := &aitest.Gateway{
		GenerateImageFunc: func(context.Context, credential.Credential, string) (*dream.Image, error) {
			return nil, &ai.OperationError{Op: ai.OpGenerateImage, Err: errors.New("deadline exceeded")}
		},
	}
	o := newOrchestrator(t, gw, pipeline.Options{ImageFailurePolicy: pipeline.ImageFailureKeep})

	if _, err := o.Submit(context.Background(), "a dream"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if _, err := o.AwaitImage(context.Background()); !errors.Is(err, pipeline.ErrImageFailed) {
		t.Fatalf("expected ErrImageFailed, got %v", err)
	}

	snap := o.Snapshot()
	if snap.State != dream.StateReady {
		t.Fatalf("expected ready, got %s", snap.State)
	}
	if snap.Record.ImageError != "Failed to generate the dream image. deadline exceeded" {
		t.Fatalf("unexpected image error: %q", snap.Record.ImageError)
	}
	if snap.Record.ImagePending {
		t.Fatal("image must no longer be pending")
	}
}

func TestSubmitFromReadyStartsNewDream(t *testing.T) {
	gw := &aitest.Gateway{}
	o := newOrchestrator(t, gw, pipeline.Options{})
	ctx := context.Background()

	first, err := o.Submit(ctx, "first dream")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	session, err := o.Conversation(ctx)
	if err != nil {
		t.Fatalf("Conversation err: %v", err)
	}

	second, err := o.Submit(ctx, "second dream")
	if err != nil {
		t.Fatalf("second Submit err: %v", err)
	}
	if second.Record.ID == first.Record.ID {
		t.Fatal("expected a new record")
	}
	if second.Conversation {
		t.Fatal("conversation of the old dream must be discarded")
	}
	if _, err := session.Transcript(ctx); err == nil {
		t.Fatal("expected old transcript to be dropped")
	}
}

func TestParseImageFailurePolicy(t *testing.T) {
	if p, err := pipeline.ParseImageFailurePolicy(""); err != nil || p != pipeline.ImageFailureReplace {
		t.Fatalf("unexpected default: %s %v", p, err)
	}
	if p, err := pipeline.ParseImageFailurePolicy("keep"); err != nil || p != pipeline.ImageFailureKeep {
		t.Fatalf("unexpected keep: %s %v", p, err)
	}
	if _, err := pipeline.ParseImageFailurePolicy("retry"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
