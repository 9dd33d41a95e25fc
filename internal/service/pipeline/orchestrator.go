package pipeline

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
)

// CredentialSource hands out the credential in effect. It is read once per
// operation.
type CredentialSource interface {
	Current() credential.Credential
}

// Options tunes an Orchestrator.
type Options struct {
	ImageFailurePolicy ImageFailurePolicy
	// Transcripts stores follow-up conversations. A nil value uses a fresh
	// in-memory store.
	Transcripts *chatservice.Service
}

// Orchestrator drives one dream at a time through interpretation, image
// generation, narration and follow-up chat.
//
// Every asynchronous completion carries the generation it started under;
// completions from a discarded generation are dropped.
type Orchestrator struct {
	gateway     ai.Gateway
	creds       CredentialSource
	policy      ImageFailurePolicy
	transcripts *chatservice.Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	state      dream.State
	failure    *dream.Failure
	record     *dream.Record
	generation uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	version    uint64
	changed    chan struct{}
	imageDone  chan struct{}
	narration  *narrationCall
	session    *chatservice.Session

	convMu sync.Mutex
}

// New creates an idle orchestrator.
func New(gateway ai.Gateway, creds CredentialSource, opts Options) *Orchestrator {
	if opts.ImageFailurePolicy == "" {
		opts.ImageFailurePolicy = ImageFailureReplace
	}
	if opts.Transcripts == nil {
		opts.Transcripts = chatservice.NewService()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		gateway:     gateway,
		creds:       creds,
		policy:      opts.ImageFailurePolicy,
		transcripts: opts.Transcripts,
		ctx:         ctx,
		cancel:      cancel,
		state:       dream.StateIdle,
		changed:     make(chan struct{}),
	}
	o.genCtx, o.genCancel = context.WithCancel(ctx)
	return o
}

// Submit interprets text as a new dream. It returns once the interpretation
// call finished; the image is generated in the background afterwards.
//
// Submitting from ready or failed discards the current dream first.
// The returned error is the failure cause, nil when the pipeline is ready.
func (o *Orchestrator) Submit(ctx context.Context, text string) (dream.Snapshot, error) {
	o.mu.Lock()
	if o.closed {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, ErrClosed
	}
	if o.state == dream.StateProcessing {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, ErrBusy
	}
	o.discardLocked()

	transcription := strings.TrimSpace(text)
	if transcription == "" {
		o.failLocked(dream.FailureEmptyInput, emptyInputMessage)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, ErrEmptyInput
	}

	cred := o.creds.Current()
	if cred.Empty() {
		err := &ai.OperationError{Op: ai.OpInterpret, Err: ai.ErrMissingCredential}
		o.failLocked(dream.FailureMissingCredential, interpretFailurePrefix+ai.Cause(err))
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, err
	}

	o.state = dream.StateProcessing
	o.bumpLocked()
	gen, genCtx := o.generation, o.genCtx
	o.mu.Unlock()

	log.Printf("[pipeline] interpreting dream, generation=%d, length=%d", gen, len(transcription))

	callCtx, stop := context.WithCancel(ctx)
	unregister := context.AfterFunc(genCtx, stop)
	interpretation, err := o.gateway.Interpret(callCtx, cred, transcription)
	unregister()
	stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		log.Printf("[pipeline] dropping interpretation for discarded generation %d", gen)
		return o.snapshotLocked(), ErrDiscarded
	}
	if err != nil {
		log.Printf("[pipeline] interpretation failed: %v", err)
		o.failLocked(classify(err), interpretFailurePrefix+ai.Cause(err))
		return o.snapshotLocked(), err
	}

	record := dream.NewRecord(transcription, interpretation)
	o.record = record
	o.state = dream.StateReady
	o.bumpLocked()
	o.startImageLocked(gen, genCtx, cred, record)

	log.Printf("[pipeline] dream %s ready, image pending", record.ID)
	return o.snapshotLocked(), nil
}

// Reset discards the current dream and returns to idle. It is always legal.
func (o *Orchestrator) Reset() dream.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.discardLocked()
	o.state = dream.StateIdle
	o.bumpLocked()
	return o.snapshotLocked()
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() dream.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Changed returns a channel that is closed on the next state change.
func (o *Orchestrator) Changed() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

// Record returns a copy of the live record, if any.
func (o *Orchestrator) Record() (dream.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.record == nil {
		return dream.Record{}, false
	}
	return *o.record, true
}

// Close cancels background work and waits for it to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.discardLocked()
	o.bumpLocked()
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// discardLocked drops the record with everything bound to it and starts a
// new generation.
func (o *Orchestrator) discardLocked() {
	o.genCancel()
	o.generation++
	o.genCtx, o.genCancel = context.WithCancel(o.ctx)

	if o.session != nil {
		o.session.Close()
		o.session = nil
	}
	if o.imageDone != nil {
		close(o.imageDone)
		o.imageDone = nil
	}
	o.record = nil
	o.narration = nil
	o.failure = nil
}

func (o *Orchestrator) failLocked(kind dream.FailureKind, message string) {
	o.state = dream.StateFailed
	o.failure = &dream.Failure{Kind: kind, Message: message}
	o.bumpLocked()
}

func (o *Orchestrator) bumpLocked() {
	o.version++
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) snapshotLocked() dream.Snapshot {
	snap := dream.Snapshot{
		Version:      o.version,
		State:        o.state,
		Conversation: o.session != nil,
	}
	if o.failure != nil {
		failure := *o.failure
		snap.Failure = &failure
	}
	if o.record != nil {
		snap.Record = o.record.View()
	}
	if o.narration != nil && o.narration.cached() {
		snap.NarrationCached = true
	}
	return snap
}
