package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

var _ model.ChatModel = (*geminiChatModel)(nil)

// geminiChatModel adapts the Gemini content API to eino's ChatModel so the
// prompt chains can run on it.
type geminiChatModel struct {
	client *genai.Client
	model  string
}

func newGeminiChatModel(client *genai.Client, modelName string) *geminiChatModel {
	return &geminiChatModel{client: client, model: modelName}
}

func (m *geminiChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	cfg, contents, err := convertMessages(input)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return nil, err
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *geminiChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	cfg, contents, err := convertMessages(input)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.model, contents, cfg) {
			if err != nil {
				sw.Send(nil, err)
				return
			}
			text, err := candidateText(resp)
			if err != nil && !errors.Is(err, ErrNoPayload) {
				sw.Send(nil, err)
				return
			}
			if text == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(text, nil), nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func (m *geminiChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("gemini chat model: tools are not supported")
}

// convertMessages maps eino messages onto Gemini contents. System messages
// become the system instruction; consecutive turns of the same role are merged.
func convertMessages(input []*schema.Message) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}

	var (
		system   []*genai.Part
		contents []*genai.Content
		last     *genai.Content
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}

		var role string
		switch msg.Role {
		case schema.System:
			system = append(system, genai.NewPartFromText(msg.Content))
			continue
		case schema.User:
			role = string(genai.RoleUser)
		case schema.Assistant:
			role = string(genai.RoleModel)
		default:
			return nil, nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		part := genai.NewPartFromText(msg.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}

	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no contents")
	}
	return cfg, contents, nil
}

// candidateText extracts the first candidate's text, translating block signals
// into ErrBlocked and empty responses into ErrNoPayload.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrNoPayload
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrNoPayload
	}

	c := resp.Candidates[0]
	if err := finishError(c.FinishReason); err != nil {
		return "", err
	}
	if c.Content == nil {
		return "", ErrNoPayload
	}

	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrNoPayload
	}
	return sb.String(), nil
}

func finishError(reason genai.FinishReason) error {
	switch reason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return nil
	default:
		return fmt.Errorf("%w: finish reason %s", ErrBlocked, reason)
	}
}
