package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"edital-assistant/internal/models"
)

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
	defaultSeparator    = "\n"
	defaultTopK         = 10

	defaultOllamaURL   = "http://localhost:11434"
	defaultEmbedModel  = "nomic-embed-text"
	defaultChatModel   = "llama3"
	defaultTemperature = 0.3

	defaultTimeoutSecs = 120
	defaultMaxRetries  = 1
	defaultRetryDelay  = 1000

	defaultAddr = ":8501"
)

type Config struct {
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	Provider ProviderConfig `yaml:"provider"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	Separator      string `yaml:"separator"`
	TopK           int    `yaml:"top_k"`
	DontKnowAnswer string `yaml:"dont_know_answer"`
}

// LLMConfig describes one model endpoint. Provider is "ollama" or "openai"
// (any OpenAI-compatible server, e.g. OpenRouter).
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Key         string   `yaml:"key"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"` // nil means unset; 0 is a valid value
}

// ProviderConfig bounds every call made to the embedding and chat backends.
type ProviderConfig struct {
	TimeoutSecs  int  `yaml:"timeout_secs"`
	MaxRetries   *int `yaml:"max_retries"`
	RetryDelayMs int  `yaml:"retry_delay_ms"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads the yaml file at path. A missing file is not an error,
// defaults are used instead. Environment variables (and a .env file in the
// working directory) override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	for name, l := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "chat_llm": c.ChatLLM} {
		if l.Provider != "ollama" && l.Provider != "openai" {
			return fmt.Errorf("%s.provider: unknown provider %q", name, l.Provider)
		}
	}
	if t := c.ChatLLM.Temperature; t != nil && *t < 0 {
		return fmt.Errorf("chat_llm.temperature must not be negative, got %g", *t)
	}
	if n := c.Provider.MaxRetries; n != nil && *n < 0 {
		return fmt.Errorf("provider.max_retries must not be negative, got %d", *n)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New("database.dsn is required when database.enabled is set")
	}
	return nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"ALE_EMBED_PROVIDER", &cfg.EmbedLLM.Provider},
		{"ALE_EMBED_BASE_URL", &cfg.EmbedLLM.BaseURL},
		{"ALE_EMBED_MODEL", &cfg.EmbedLLM.Model},
		{"ALE_EMBED_KEY", &cfg.EmbedLLM.Key},
		{"ALE_CHAT_PROVIDER", &cfg.ChatLLM.Provider},
		{"ALE_CHAT_BASE_URL", &cfg.ChatLLM.BaseURL},
		{"ALE_CHAT_MODEL", &cfg.ChatLLM.Model},
		{"ALE_CHAT_KEY", &cfg.ChatLLM.Key},
		{"ALE_DATABASE_DSN", &cfg.Database.DSN},
		{"ALE_DATABASE_PASSWORD", &cfg.Database.Password},
		{"ALE_ADDR", &cfg.Server.Addr},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 && cfg.RAG.ChunkSize > defaultChunkOverlap {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.Separator == "" {
		cfg.RAG.Separator = defaultSeparator
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.DontKnowAnswer == "" {
		cfg.RAG.DontKnowAnswer = models.DontKnowAnswer
	}

	llmDefaults(&cfg.EmbedLLM, defaultEmbedModel)
	llmDefaults(&cfg.ChatLLM, defaultChatModel)
	if cfg.ChatLLM.Temperature == nil {
		t := defaultTemperature
		cfg.ChatLLM.Temperature = &t
	}

	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = defaultTimeoutSecs
	}
	if cfg.Provider.MaxRetries == nil {
		n := defaultMaxRetries
		cfg.Provider.MaxRetries = &n
	}
	if cfg.Provider.RetryDelayMs == 0 {
		cfg.Provider.RetryDelayMs = defaultRetryDelay
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func llmDefaults(l *LLMConfig, model string) {
	if l.Provider == "" {
		l.Provider = "ollama"
	}
	if l.BaseURL == "" && l.Provider == "ollama" {
		l.BaseURL = defaultOllamaURL
	}
	if l.Model == "" {
		l.Model = model
	}
}
