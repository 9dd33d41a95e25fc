package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Operation names carried by OperationError.
const (
	OpInterpret          = "interpret"
	OpGenerateImage      = "generate image"
	OpSynthesizeSpeech   = "synthesize speech"
	OpCreateConversation = "create conversation"
	OpConversation       = "conversation turn"
)

var (
	ErrMissingCredential = errors.New("access credential is missing")
	ErrNoPayload         = errors.New("no payload returned")
	ErrBlocked           = errors.New("content blocked by provider")
)

// OperationError is the single failure shape every Gateway operation returns.
// Err is either one of the sentinel errors above or the upstream error.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Op: op, Err: chainCause(err)}
}

// eino decorates node failures with the node path; these prefixes mark the
// layers that only carry that decoration.
var chainErrorPrefixes = []string{
	"[NodeRunError] ",
	"[GraphRunError] ",
	"failed to read from stream. error: ",
}

// chainCause strips the eino graph layers so the provider or sentinel error
// is what OperationError carries.
func chainCause(err error) error {
	for {
		inner := errors.Unwrap(err)
		if inner == nil || !hasChainPrefix(err.Error()) {
			return err
		}
		err = inner
	}
}

func hasChainPrefix(msg string) bool {
	for _, prefix := range chainErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// Cause returns the human-readable cause of a Gateway failure, without the
// operation prefix.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
