package pipeline

import (
	"context"
	"log"
	"strings"

	"github.com/zhouzirui/lucid-weaver/backend/internal/analysis/markdown"
	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

// narrationCall is one speech synthesis shared by every caller that asks
// while it runs. A successful call stays as the record's cache.
type narrationCall struct {
	done  chan struct{}
	audio *dream.Audio
	err   error
}

func (c *narrationCall) cached() bool {
	select {
	case <-c.done:
		return c.err == nil
	default:
		return false
	}
}

// Narration returns the spoken interpretation of the live record. The second
// result reports whether the audio came from the cache.
//
// Failures are not cached and leave the pipeline state unchanged.
func (o *Orchestrator) Narration(ctx context.Context) (*dream.Audio, bool, error) {
	o.mu.Lock()
	if o.state != dream.StateReady || o.record == nil {
		o.mu.Unlock()
		return nil, false, ErrNotReady
	}

	call := o.narration
	if call != nil && call.cached() {
		o.mu.Unlock()
		return call.audio, true, nil
	}

	if call == nil {
		cred := o.creds.Current()
		if cred.Empty() {
			o.mu.Unlock()
			return nil, false, &ai.OperationError{Op: ai.OpSynthesizeSpeech, Err: ai.ErrMissingCredential}
		}

		call = &narrationCall{done: make(chan struct{})}
		o.narration = call
		o.wg.Add(1)
		go o.synthesize(o.generation, o.genCtx, cred, narrationText(o.record.Interpretation), call)
	}
	o.mu.Unlock()

	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if call.err != nil {
		return nil, false, call.err
	}
	return call.audio, false, nil
}

func (o *Orchestrator) synthesize(gen uint64, ctx context.Context, cred credential.Credential, text string, call *narrationCall) {
	defer o.wg.Done()

	audio, err := o.gateway.SynthesizeSpeech(ctx, cred, text)
	if err == nil && (audio == nil || len(audio.Data) == 0) {
		err = &ai.OperationError{Op: ai.OpSynthesizeSpeech, Err: ai.ErrNoPayload}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	call.audio, call.err = audio, err
	close(call.done)

	if gen != o.generation {
		return
	}
	if err != nil {
		log.Printf("[pipeline] narration failed: %v", err)
		if o.narration == call {
			o.narration = nil
		}
		return
	}
	log.Printf("[pipeline] narration cached, bytes=%d", len(audio.Data))
	o.bumpLocked()
}

func narrationText(interpretation string) string {
	if text := markdown.PlainText(interpretation); strings.TrimSpace(text) != "" {
		return text
	}
	return interpretation
}
