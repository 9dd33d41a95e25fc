package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/goccy/go-yaml"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Gemini   GeminiConfig
	AI       AIConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

// Load 从环境变量加载配置。设置 WEAVER_CONFIG 时先读取 YAML 文件，环境变量优先级更高。
func Load() (*Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("WEAVER_CONFIG")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(file)
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig(file)
	if err != nil {
		return nil, err
	}

	pipeline, err := loadPipelineConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Gemini:   loadGeminiConfig(file),
		AI:       ai,
		Storage:  storage,
		Pipeline: pipeline,
	}, nil
}

// fileConfig 是 YAML 配置文件的结构，字段均可省略。
type fileConfig struct {
	Port   string `yaml:"port"`
	Gemini struct {
		BaseURL        string `yaml:"base_url"`
		InterpretModel string `yaml:"interpret_model"`
		ChatModel      string `yaml:"chat_model"`
		ImageModel     string `yaml:"image_model"`
		SpeechModel    string `yaml:"speech_model"`
		SpeechVoice    string `yaml:"speech_voice"`
		AspectRatio    string `yaml:"aspect_ratio"`
	} `yaml:"gemini"`
	Ark struct {
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		Region  string `yaml:"region"`
	} `yaml:"ark"`
	DataDir            string `yaml:"data_dir"`
	ImageFailurePolicy string `yaml:"image_failure_policy"`
}

func loadFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", strings.TrimSpace(file.Port))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// GeminiConfig 描述 Gemini 模型与默认凭证。
type GeminiConfig struct {
	// APIKey 仅作为兜底，用户保存的凭证优先。
	APIKey         string
	BaseURL        string
	InterpretModel string
	ChatModel      string
	ImageModel     string
	SpeechModel    string
	SpeechVoice    string
	AspectRatio    string
}

func loadGeminiConfig(file fileConfig) GeminiConfig {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}

	return GeminiConfig{
		APIKey:         apiKey,
		BaseURL:        getEnvOrDefault("GEMINI_BASE_URL", file.Gemini.BaseURL),
		InterpretModel: getEnvOrDefault("GEMINI_INTERPRET_MODEL", orDefault(file.Gemini.InterpretModel, "gemini-2.5-pro")),
		ChatModel:      getEnvOrDefault("GEMINI_CHAT_MODEL", orDefault(file.Gemini.ChatModel, "gemini-2.5-flash")),
		ImageModel:     getEnvOrDefault("GEMINI_IMAGE_MODEL", orDefault(file.Gemini.ImageModel, "imagen-4.0-generate-001")),
		SpeechModel:    getEnvOrDefault("GEMINI_SPEECH_MODEL", orDefault(file.Gemini.SpeechModel, "gemini-2.5-flash-preview-tts")),
		SpeechVoice:    getEnvOrDefault("GEMINI_SPEECH_VOICE", orDefault(file.Gemini.SpeechVoice, "Kore")),
		AspectRatio:    getEnvOrDefault("IMAGE_ASPECT_RATIO", orDefault(file.Gemini.AspectRatio, "3:4")),
	}
}

// AIConfig 描述可选的 Ark 文本模型。配置后解读与对话改走 Ark，图片与语音仍使用 Gemini。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(file fileConfig) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       getEnvOrDefault("Model", file.Ark.Model),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", orDefault(file.Ark.BaseURL, "https://ark.cn-beijing.volces.com/api/v3")),
		Region:      getEnvOrDefault("ARK_REGION", orDefault(file.Ark.Region, "cn-beijing")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// StorageConfig 描述本地数据目录。
type StorageConfig struct {
	DataDir string
}

// CredentialPath 返回凭证数据库文件路径。
func (c StorageConfig) CredentialPath() string {
	return filepath.Join(c.DataDir, "weaver.db")
}

func loadStorageConfig(file fileConfig) (StorageConfig, error) {
	dir := getEnvOrDefault("WEAVER_DATA_DIR", file.DataDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return StorageConfig{}, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".lucid-weaver")
	}
	return StorageConfig{DataDir: dir}, nil
}

// PipelineConfig 描述流水线行为。
type PipelineConfig struct {
	// ImageFailurePolicy 为 "replace"（图片失败时整体失败）或 "keep"（保留解读）。
	ImageFailurePolicy string
}

func loadPipelineConfig(file fileConfig) (PipelineConfig, error) {
	policy := strings.ToLower(getEnvOrDefault("IMAGE_FAILURE_POLICY", orDefault(file.ImageFailurePolicy, "replace")))
	switch policy {
	case "replace", "keep":
	default:
		return PipelineConfig{}, fmt.Errorf("invalid IMAGE_FAILURE_POLICY value: %q", policy)
	}
	return PipelineConfig{ImageFailurePolicy: policy}, nil
}

func orDefault(value, defaultValue string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
