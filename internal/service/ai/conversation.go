package ai

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// chainConversation keeps the provider-side history of a follow-up chat.
// A turn is added to the history only after its reply completed.
type chainConversation struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string

	mu      sync.Mutex
	history []*schema.Message
}

func newChainConversation(chain compose.Runnable[map[string]any, *schema.Message], system string) *chainConversation {
	return &chainConversation{chain: chain, system: system}
}

func (c *chainConversation) SendStream(ctx context.Context, message string) (*schema.StreamReader[string], error) {
	c.mu.Lock()
	history := append([]*schema.Message(nil), c.history...)
	c.mu.Unlock()

	upstream, err := c.chain.Stream(ctx, map[string]any{
		"system":  c.system,
		"history": history,
		"query":   message,
	})
	if err != nil {
		return nil, wrap(OpConversation, err)
	}

	sr, sw := schema.Pipe[string](8)
	go c.forward(upstream, sw, message)
	return sr, nil
}

func (c *chainConversation) forward(upstream *schema.StreamReader[*schema.Message], sw *schema.StreamWriter[string], message string) {
	defer sw.Close()
	defer upstream.Close()

	var reply strings.Builder
	for {
		chunk, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sw.Send("", wrap(OpConversation, err))
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		reply.WriteString(chunk.Content)
		if closed := sw.Send(chunk.Content, nil); closed {
			log.Printf("[ai] conversation reader closed before reply completed")
			return
		}
	}

	if strings.TrimSpace(reply.String()) == "" {
		sw.Send("", wrap(OpConversation, ErrNoPayload))
		return
	}

	c.mu.Lock()
	c.history = append(c.history, schema.UserMessage(message), schema.AssistantMessage(reply.String(), nil))
	c.mu.Unlock()
}
