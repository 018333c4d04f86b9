package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/store"
)

const defaultOpenAIModelName = "gpt-4o-mini"

// OpenAIGenerator calls the OpenAI chat completion API. Selected with
// LLM_PROVIDER=openai.
type OpenAIGenerator struct {
	client    *openai.Client
	modelName string
	log       *zap.Logger
}

// NewOpenAIGenerator targets the public API unless baseURL is set, which
// points it at a compatible endpoint instead.
func NewOpenAIGenerator(apiKey, baseURL, modelName string, log *zap.Logger) *OpenAIGenerator {
	if modelName == "" {
		modelName = defaultOpenAIModelName
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientConfig),
		modelName: modelName,
		log:       log,
	}
}

func (c *OpenAIGenerator) Close() error { return nil }

func (c *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	history := alternate(req.History)
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == store.RoleAI {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	prompt := req.Prompt
	current := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	switch {
	case req.Image != nil:
		current.MultiContent = []openai.ChatMessagePart{{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + req.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		}}
		if prompt != "" {
			current.MultiContent = append(current.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			})
		}
	case prompt != "":
		current.Content = prompt
	default:
		return "", ErrEmptyTurn
	}
	msgs = append(msgs, current)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.log.Warn("openai response had no content")
		return EmptyResponseText, nil
	}
	return resp.Choices[0].Message.Content, nil
}
