package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoConfig configures an OpenAI-compatible chat model.
type EinoConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// EinoProvider talks to any OpenAI-compatible endpoint through eino's chat model.
type EinoProvider struct {
	model model.BaseChatModel
}

func NewEinoProvider(ctx context.Context, cfg EinoConfig) (*EinoProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: init chat model: %w", err)
	}
	return &EinoProvider{model: cm}, nil
}

func (p *EinoProvider) Name() string { return "openai" }

func (p *EinoProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	in := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		in = append(in, &schema.Message{Role: toSchemaRole(m.Role), Content: m.Content})
	}

	callOpts := []model.Option{
		model.WithTemperature(float32(opts.Temperature)),
		model.WithTopP(float32(opts.TopP)),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := p.model.Generate(ctx, in, callOpts...)
	if err != nil {
		if looksRateLimited(err) {
			return "", &Error{Kind: KindRateLimited, Provider: p.Name(), Status: 429, Err: err}
		}
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: err}
	}
	if resp == nil {
		return "", nil
	}
	return cleanReply(resp.Content), nil
}

func toSchemaRole(role string) schema.RoleType {
	switch role {
	case RoleSystem:
		return schema.System
	case RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
