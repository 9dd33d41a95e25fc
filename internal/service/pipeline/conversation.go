package pipeline

import (
	"context"
	"log"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
)

// Conversation returns the follow-up chat of the live record, creating it on
// first use. The same session is returned until the dream is discarded.
func (o *Orchestrator) Conversation(ctx context.Context) (*chatservice.Session, error) {
	o.convMu.Lock()
	defer o.convMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.state != dream.StateReady || o.record == nil {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	if o.session != nil {
		session := o.session
		o.mu.Unlock()
		return session, nil
	}
	gen := o.generation
	record := *o.record
	cred := o.creds.Current()
	o.mu.Unlock()

	if cred.Empty() {
		return nil, &ai.OperationError{Op: ai.OpCreateConversation, Err: ai.ErrMissingCredential}
	}

	directive := ai.BuildConversationDirective(record.Transcription, record.Interpretation)
	conv, err := o.gateway.CreateConversation(ctx, cred, directive)
	if err != nil {
		log.Printf("[pipeline] create conversation failed: %v", err)
		return nil, err
	}

	session, err := chatservice.NewSession(ctx, o.transcripts, conv, record.ID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		session.Close()
		return nil, ErrDiscarded
	}
	o.session = session
	o.bumpLocked()

	log.Printf("[pipeline] conversation %s opened for dream %s", session.Info().ID, record.ID)
	return session, nil
}
