package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
)

const (
	DefaultInterpretModel = "gemini-2.5-pro"
	DefaultChatModel      = "gemini-2.5-flash"
	DefaultImageModel     = "imagen-4.0-generate-001"
	DefaultSpeechModel    = "gemini-2.5-flash-preview-tts"
	DefaultSpeechVoice    = "Kore"
	DefaultAspectRatio    = "3:4"

	// Gemini TTS answers with 16-bit mono PCM at 24 kHz.
	speechSampleRate = 24000
	speechChannels   = 1
)

var _ Gateway = (*Service)(nil)

// ChatModelFactory builds the text model used for one call or conversation.
type ChatModelFactory func(ctx context.Context, cred credential.Credential, modelName string) (model.ChatModel, error)

// Options selects models and endpoints for the Gemini-backed Service.
type Options struct {
	BaseURL        string
	InterpretModel string
	ChatModel      string
	ImageModel     string
	SpeechModel    string
	SpeechVoice    string
	AspectRatio    string

	// TextModel replaces the Gemini text model for interpretation and chat.
	// Image and speech synthesis always go to Gemini with the caller's credential.
	TextModel ChatModelFactory
}

func (o Options) withDefaults() Options {
	if o.InterpretModel == "" {
		o.InterpretModel = DefaultInterpretModel
	}
	if o.ChatModel == "" {
		o.ChatModel = DefaultChatModel
	}
	if o.ImageModel == "" {
		o.ImageModel = DefaultImageModel
	}
	if o.SpeechModel == "" {
		o.SpeechModel = DefaultSpeechModel
	}
	if o.SpeechVoice == "" {
		o.SpeechVoice = DefaultSpeechVoice
	}
	if o.AspectRatio == "" {
		o.AspectRatio = DefaultAspectRatio
	}
	return o
}

// Service implements Gateway on top of the Gemini API. It keeps no state
// beyond its options; the credential arrives with every call.
type Service struct {
	opts      Options
	textModel ChatModelFactory
}

// NewService creates a Gemini-backed gateway.
func NewService(opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{opts: opts, textModel: opts.TextModel}
	if s.textModel == nil {
		s.textModel = s.geminiTextModel
	}
	return s
}

// Interpret asks the text model for a structured markdown interpretation.
func (s *Service) Interpret(ctx context.Context, cred credential.Credential, transcription string) (string, error) {
	chatModel, err := s.textModel(ctx, cred, s.opts.InterpretModel)
	if err != nil {
		return "", wrap(OpInterpret, err)
	}

	chain, err := compileChain(ctx, chatModel)
	if err != nil {
		return "", wrap(OpInterpret, err)
	}

	msg, err := chain.Invoke(ctx, map[string]any{
		"system": interpretDirective,
		"query":  interpretQuery(transcription),
	})
	if err != nil {
		return "", wrap(OpInterpret, err)
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", wrap(OpInterpret, ErrNoPayload)
	}

	log.Printf("[ai] interpretation generated, model=%s, length=%d", s.opts.InterpretModel, len(text))
	return text, nil
}

// GenerateImage renders one illustration of the dream.
func (s *Service) GenerateImage(ctx context.Context, cred credential.Credential, transcription string) (*dream.Image, error) {
	client, err := s.client(ctx, cred)
	if err != nil {
		return nil, wrap(OpGenerateImage, err)
	}

	resp, err := client.Models.GenerateImages(ctx, s.opts.ImageModel, imagePrompt(transcription), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    s.opts.AspectRatio,
	})
	if err != nil {
		return nil, wrap(OpGenerateImage, err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return nil, wrap(OpGenerateImage, fmt.Errorf("%w: no image was generated", ErrNoPayload))
	}

	generated := resp.GeneratedImages[0]
	if generated.RAIFilteredReason != "" {
		return nil, wrap(OpGenerateImage, fmt.Errorf("%w: %s", ErrBlocked, generated.RAIFilteredReason))
	}
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		return nil, wrap(OpGenerateImage, fmt.Errorf("%w: no image was generated", ErrNoPayload))
	}

	mime := generated.Image.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	log.Printf("[ai] image generated, model=%s, bytes=%d", s.opts.ImageModel, len(generated.Image.ImageBytes))
	return &dream.Image{Data: generated.Image.ImageBytes, MIMEType: mime}, nil
}

// SynthesizeSpeech narrates text with a prebuilt voice and returns raw PCM.
func (s *Service) SynthesizeSpeech(ctx context.Context, cred credential.Credential, text string) (*dream.Audio, error) {
	client, err := s.client(ctx, cred)
	if err != nil {
		return nil, wrap(OpSynthesizeSpeech, err)
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.opts.SpeechVoice},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.opts.SpeechModel, genai.Text(narrationPrompt(text)), cfg)
	if err != nil {
		return nil, wrap(OpSynthesizeSpeech, err)
	}

	audio, err := inlineAudio(resp)
	if err != nil {
		return nil, wrap(OpSynthesizeSpeech, err)
	}

	log.Printf("[ai] narration synthesized, model=%s, bytes=%d", s.opts.SpeechModel, len(audio.Data))
	return audio, nil
}

// CreateConversation opens a chat handle seeded with systemInstruction.
func (s *Service) CreateConversation(ctx context.Context, cred credential.Credential, systemInstruction string) (Conversation, error) {
	chatModel, err := s.textModel(ctx, cred, s.opts.ChatModel)
	if err != nil {
		return nil, wrap(OpCreateConversation, err)
	}

	chain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, wrap(OpCreateConversation, err)
	}

	return newChainConversation(chain, systemInstruction), nil
}

func (s *Service) client(ctx context.Context, cred credential.Credential) (*genai.Client, error) {
	if cred.Empty() {
		return nil, ErrMissingCredential
	}

	cfg := &genai.ClientConfig{
		APIKey:  string(cred),
		Backend: genai.BackendGeminiAPI,
	}
	if s.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func (s *Service) geminiTextModel(ctx context.Context, cred credential.Credential, modelName string) (model.ChatModel, error) {
	client, err := s.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	return newGeminiChatModel(client, modelName), nil
}

// compileChain builds the system/history/query prompt chain on top of chatModel.
func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return runnable, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) (*dream.Audio, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoPayload
	}

	c := resp.Candidates[0]
	if err := finishError(c.FinishReason); err != nil {
		return nil, err
	}
	if c.Content == nil {
		return nil, ErrNoPayload
	}

	for _, p := range c.Content.Parts {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		return &dream.Audio{
			Data:       p.InlineData.Data,
			MIMEType:   p.InlineData.MIMEType,
			SampleRate: speechSampleRate,
			Channels:   speechChannels,
		}, nil
	}
	return nil, fmt.Errorf("%w: no audio data in response", ErrNoPayload)
}
