package ai

import (
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

func TestConvertMessages(t *testing.T) {
	cfg, contents, err := convertMessages([]*schema.Message{
		schema.SystemMessage("be a dream expert"),
		schema.UserMessage("first"),
		schema.UserMessage("second"),
		schema.AssistantMessage("reply", nil),
		schema.UserMessage("third"),
	})
	if err != nil {
		t.Fatalf("convertMessages err: %v", err)
	}

	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 1 {
		t.Fatalf("expected system instruction, got %+v", cfg.SystemInstruction)
	}
	if cfg.SystemInstruction.Parts[0].Text != "be a dream expert" {
		t.Fatalf("unexpected system text: %q", cfg.SystemInstruction.Parts[0].Text)
	}

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents after merging, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || len(contents[0].Parts) != 2 {
		t.Fatalf("expected merged user content, got %+v", contents[0])
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("expected model role, got %s", contents[1].Role)
	}
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	if _, _, err := convertMessages([]*schema.Message{schema.SystemMessage("only system")}); err == nil {
		t.Fatal("expected error without user content")
	}
}

func TestCandidateText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "# Dream "},
				{Text: "Interpretation"},
			}},
		}},
	}

	text, err := candidateText(resp)
	if err != nil {
		t.Fatalf("candidateText err: %v", err)
	}
	if text != "# Dream Interpretation" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestCandidateTextBlocked(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	if _, err := candidateText(resp); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	if _, err := candidateText(&genai.GenerateContentResponse{}); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func TestInlineAudio(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: []byte{1, 2, 3, 4}, MIMEType: "audio/L16;codec=pcm;rate=24000"}},
			}},
		}},
	}

	audio, err := inlineAudio(resp)
	if err != nil {
		t.Fatalf("inlineAudio err: %v", err)
	}
	if audio.SampleRate != 24000 || audio.Channels != 1 || len(audio.Data) != 4 {
		t.Fatalf("unexpected audio: %+v", audio)
	}

	empty := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}
	if _, err := inlineAudio(empty); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}
