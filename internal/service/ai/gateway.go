package ai

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
)

// Gateway is the facade over the remote AI provider. Every call is a single
// attempt; failures come back as *OperationError.
type Gateway interface {
	Interpret(ctx context.Context, cred credential.Credential, transcription string) (string, error)
	GenerateImage(ctx context.Context, cred credential.Credential, transcription string) (*dream.Image, error)
	SynthesizeSpeech(ctx context.Context, cred credential.Credential, text string) (*dream.Audio, error)
	CreateConversation(ctx context.Context, cred credential.Credential, systemInstruction string) (Conversation, error)
}

// Conversation is a provider-side chat handle seeded with a system directive.
type Conversation interface {
	// SendStream issues one turn and yields text fragments until io.EOF.
	// Closing the returned reader stops the upstream request.
	SendStream(ctx context.Context, message string) (*schema.StreamReader[string], error)
}
