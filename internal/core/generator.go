package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"curaai.dev/cura/internal/config"
	"curaai.dev/cura/internal/store"
)

// Turn is one prior exchange entry passed to the model as context.
type Turn struct {
	Role store.Role
	Text string
}

// InlineImage is a decoded image attachment.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// GenerateRequest is everything a Generator needs for a single reply.
type GenerateRequest struct {
	SystemInstruction string
	Temperature       float32
	History           []Turn
	// Prompt is the framed text of the current user message.
	Prompt string
	Image  *InlineImage
}

// Generator produces reply text from an external generative model.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Close() error
}

// alternate collapses consecutive same-role turns so the history strictly
// alternates user/ai and starts with a user turn, which the providers require.
// A trailing user turn (left dangling by an earlier failed request) is dropped;
// the current prompt is always sent on its own.
func alternate(turns []Turn) []Turn {
	var history []Turn
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		if len(history) == 0 && t.Role != store.RoleUser {
			continue
		}
		if n := len(history); n > 0 && history[n-1].Role == t.Role {
			history[n-1].Text += "\n\n" + t.Text
			continue
		}
		history = append(history, t)
	}
	if n := len(history); n > 0 && history[n-1].Role == store.RoleUser {
		history = history[:n-1]
	}
	return history
}

// NewGenerator builds the provider selected in cfg.
func NewGenerator(ctx context.Context, cfg config.Config, log *zap.Logger) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, log), nil
	case config.ProviderGemini, "":
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.LLMModel, log)
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}
