// Package aitest provides an in-memory ai.Gateway for tests.
package aitest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

var _ ai.Gateway = (*Gateway)(nil)

// Gateway records calls and answers with the configured funcs. A nil func
// returns a canned success.
type Gateway struct {
	InterpretFunc          func(ctx context.Context, cred credential.Credential, transcription string) (string, error)
	GenerateImageFunc      func(ctx context.Context, cred credential.Credential, transcription string) (*dream.Image, error)
	SynthesizeSpeechFunc   func(ctx context.Context, cred credential.Credential, text string) (*dream.Audio, error)
	CreateConversationFunc func(ctx context.Context, cred credential.Credential, system string) (ai.Conversation, error)

	interpretCalls    atomic.Int32
	imageCalls        atomic.Int32
	speechCalls       atomic.Int32
	conversationCalls atomic.Int32

	mu         sync.Mutex
	lastSystem string
	lastText   string
}

func (g *Gateway) Interpret(ctx context.Context, cred credential.Credential, transcription string) (string, error) {
	g.interpretCalls.Add(1)
	if g.InterpretFunc != nil {
		return g.InterpretFunc(ctx, cred, transcription)
	}
	return "# Dream Interpretation\n\n## Core Emotional Theme\n\nWonder.", nil
}

func (g *Gateway) GenerateImage(ctx context.Context, cred credential.Credential, transcription string) (*dream.Image, error) {
	g.imageCalls.Add(1)
	if g.GenerateImageFunc != nil {
		return g.GenerateImageFunc(ctx, cred, transcription)
	}
	return &dream.Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}, nil
}

func (g *Gateway) SynthesizeSpeech(ctx context.Context, cred credential.Credential, text string) (*dream.Audio, error) {
	g.speechCalls.Add(1)
	g.mu.Lock()
	g.lastText = text
	g.mu.Unlock()
	if g.SynthesizeSpeechFunc != nil {
		return g.SynthesizeSpeechFunc(ctx, cred, text)
	}
	return &dream.Audio{Data: []byte{0, 1, 2, 3}, MIMEType: "audio/L16;rate=24000", SampleRate: 24000, Channels: 1}, nil
}

func (g *Gateway) CreateConversation(ctx context.Context, cred credential.Credential, system string) (ai.Conversation, error) {
	g.conversationCalls.Add(1)
	g.mu.Lock()
	g.lastSystem = system
	g.mu.Unlock()
	if g.CreateConversationFunc != nil {
		return g.CreateConversationFunc(ctx, cred, system)
	}
	return &Conversation{Fragments: []string{"Water ", "often ", "means emotion."}}, nil
}

func (g *Gateway) InterpretCalls() int    { return int(g.interpretCalls.Load()) }
func (g *Gateway) ImageCalls() int        { return int(g.imageCalls.Load()) }
func (g *Gateway) SpeechCalls() int       { return int(g.speechCalls.Load()) }
func (g *Gateway) ConversationCalls() int { return int(g.conversationCalls.Load()) }

// LastSystemInstruction returns the directive of the latest CreateConversation call.
func (g *Gateway) LastSystemInstruction() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSystem
}

// LastSpeechText returns the text of the latest SynthesizeSpeech call.
func (g *Gateway) LastSpeechText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastText
}

// Conversation streams Fragments for every turn. Err fails the call up front;
// FailAfter > 0 emits that many fragments and then StreamErr.
type Conversation struct {
	Fragments []string
	Err       error
	FailAfter int
	StreamErr error

	// Hold, when set, blocks delivery of the first fragment until closed.
	Hold chan struct{}

	mu       sync.Mutex
	messages []string
}

func (c *Conversation) SendStream(ctx context.Context, message string) (*schema.StreamReader[string], error) {
	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}

	sr, sw := schema.Pipe[string](len(c.Fragments) + 1)
	go func() {
		defer sw.Close()
		if c.Hold != nil {
			select {
			case <-c.Hold:
			case <-ctx.Done():
				sw.Send("", ctx.Err())
				return
			}
		}
		for i, fragment := range c.Fragments {
			if c.FailAfter > 0 && i == c.FailAfter {
				sw.Send("", c.StreamErr)
				return
			}
			if closed := sw.Send(fragment, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

// Messages returns every message sent so far.
func (c *Conversation) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}
