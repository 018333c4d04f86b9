package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"curaai.dev/cura/internal/store"
)

const defaultGeminiModelName = "gemini-2.5-flash"

type GeminiGenerator struct {
	client    *genai.Client
	modelName string
	log       *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, log *zap.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGeminiModelName
	}

	return &GeminiGenerator{
		client:    client,
		modelName: modelName,
		log:       log,
	}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("closing GenAI client: %w", err)
	}
	g.log.Info("GenAI client closed")
	return nil
}

func geminiRole(r store.Role) string {
	if r == store.RoleAI {
		return "model"
	}
	return "user"
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.SetTemperature(req.Temperature)

	history := alternate(req.History)
	chatSession := model.StartChat()
	for _, t := range history {
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  geminiRole(t.Role),
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}

	// Image first, then text.
	var parts []genai.Part
	if req.Image != nil {
		parts = append(parts, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}
	if req.Prompt != "" {
		parts = append(parts, genai.Text(req.Prompt))
	}
	if len(parts) == 0 {
		return "", ErrEmptyTurn
	}

	resp, err := chatSession.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		g.log.Warn("gemini response was empty or had no valid candidates/parts")
		return EmptyResponseText, nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			g.log.Debug("gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if responseText.Len() == 0 {
		return EmptyResponseText, nil
	}
	return responseText.String(), nil
}
