package pipeline

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

var (
	ErrBusy       = errors.New("a dream is already being interpreted")
	ErrEmptyInput = errors.New("dream description is empty")
	ErrNotReady   = errors.New("no interpreted dream is available")
	ErrDiscarded  = errors.New("dream was discarded before the call completed")
	ErrClosed     = errors.New("pipeline is closed")
)

const (
	emptyInputMessage      = "Dream description was empty. Please try again."
	interpretFailurePrefix = "Failed to interpret your dream. "
	imageFailurePrefix     = "Failed to generate the dream image. "
)

// ImageFailurePolicy decides what a failed image call does to a ready dream.
type ImageFailurePolicy string

const (
	// ImageFailureReplace moves the pipeline to failed and drops the record.
	ImageFailureReplace ImageFailurePolicy = "replace"
	// ImageFailureKeep leaves the interpretation visible with an image error.
	ImageFailureKeep ImageFailurePolicy = "keep"
)

// ParseImageFailurePolicy accepts "replace", "keep" or "" (replace).
func ParseImageFailurePolicy(raw string) (ImageFailurePolicy, error) {
	switch ImageFailurePolicy(raw) {
	case "", ImageFailureReplace:
		return ImageFailureReplace, nil
	case ImageFailureKeep:
		return ImageFailureKeep, nil
	default:
		return "", fmt.Errorf("unknown image failure policy %q", raw)
	}
}

func classify(err error) dream.FailureKind {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return dream.FailureEmptyInput
	case errors.Is(err, ai.ErrMissingCredential):
		return dream.FailureMissingCredential
	case errors.Is(err, ai.ErrBlocked):
		return dream.FailureBlocked
	case errors.Is(err, ai.ErrNoPayload):
		return dream.FailureNoPayload
	default:
		return dream.FailureUpstream
	}
}
