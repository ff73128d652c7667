package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"edital-assistant/internal/config"
	"edital-assistant/internal/models"
	"edital-assistant/internal/provider"
)

var errNoChoices = errors.New("model returned no choices")

var thinkRe = regexp.MustCompile(models.ThinkTag)

// ChatModel is the part of llms.Model the assistant uses.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewChatModel builds the chat model named by cfg.Provider.
func NewChatModel(cfg *config.LLMConfig) (ChatModel, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat model")
	switch cfg.Provider {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
}

// Client calls a chat model under a provider policy.
type Client struct {
	model       ChatModel
	name        string
	temperature float64
	policy      provider.Policy
}

func New(model ChatModel, name string, temperature float64, policy provider.Policy) *Client {
	return &Client{model: model, name: name, temperature: temperature, policy: policy}
}

// GenerateContent sends messages and returns the first choice with any
// <think> block removed. op names the call in logs and errors.
func (c *Client) GenerateContent(ctx context.Context, op string, messages []llms.MessageContent) (string, error) {
	log.Debug().Str("op", op).Int("messages", len(messages)).Msg("Generating content")

	return provider.Call(ctx, c.policy, c.name, op, func(ctx context.Context) (string, error) {
		res, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Choices) == 0 {
			return "", errNoChoices
		}
		return strings.TrimSpace(thinkRe.ReplaceAllString(res.Choices[0].Content, "")), nil
	})
}
