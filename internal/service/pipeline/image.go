package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

// ErrImageFailed is returned by AwaitImage when the record kept its
// interpretation but the image call failed.
var ErrImageFailed = errors.New("image generation failed")

// startImageLocked issues the single image call for record.
func (o *Orchestrator) startImageLocked(gen uint64, ctx context.Context, cred credential.Credential, record *dream.Record) {
	done := make(chan struct{})
	o.imageDone = done

	recordID, transcription := record.ID, record.Transcription
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		img, err := o.gateway.GenerateImage(ctx, cred, transcription)
		o.completeImage(gen, recordID, img, err)
	}()
}

func (o *Orchestrator) completeImage(gen uint64, recordID string, img *dream.Image, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation || o.record == nil || o.record.ID != recordID {
		log.Printf("[pipeline] dropping image for discarded dream %s", recordID)
		return
	}
	if err == nil && (img == nil || img.Empty()) {
		err = &ai.OperationError{Op: ai.OpGenerateImage, Err: ai.ErrNoPayload}
	}

	if err != nil {
		log.Printf("[pipeline] image for dream %s failed: %v", recordID, err)
		message := imageFailurePrefix + ai.Cause(err)
		if o.policy == ImageFailureKeep {
			o.record.ImageError = message
			o.closeImageLocked()
			o.bumpLocked()
			return
		}
		o.discardLocked()
		o.failLocked(classify(err), message)
		return
	}

	o.record.SetImage(*img)
	o.closeImageLocked()
	o.bumpLocked()
	log.Printf("[pipeline] image for dream %s ready, bytes=%d", recordID, len(img.Data))
}

func (o *Orchestrator) closeImageLocked() {
	if o.imageDone != nil {
		close(o.imageDone)
		o.imageDone = nil
	}
}

// Image returns the image of the live record once it has arrived.
func (o *Orchestrator) Image() (dream.Image, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.record == nil || o.record.Image.Empty() {
		return dream.Image{}, false
	}
	return o.record.Image, true
}

// AwaitImage blocks until the image call of the live record has finished.
func (o *Orchestrator) AwaitImage(ctx context.Context) (*dream.Image, error) {
	o.mu.Lock()
	if o.record == nil {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	recordID, done := o.record.ID, o.imageDone
	o.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.record == nil || o.record.ID != recordID {
		if o.failure != nil {
			return nil, fmt.Errorf("%w: %s", ErrImageFailed, o.failure.Message)
		}
		return nil, ErrDiscarded
	}
	if o.record.ImageError != "" {
		return nil, fmt.Errorf("%w: %s", ErrImageFailed, o.record.ImageError)
	}
	img := o.record.Image
	return &img, nil
}
