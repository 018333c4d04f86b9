package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"curaai.dev/cura/internal/store"
)

type ChatService struct {
	store         store.Store
	generator     Generator
	log           *zap.Logger
	temperature   float32
	historyWindow int
	now           func() time.Time
}

type Option func(*ChatService)

// WithTemperature sets the fixed generation temperature.
func WithTemperature(t float32) Option { return func(s *ChatService) { s.temperature = t } }

// WithHistoryWindow bounds how many prior session messages are sent to the
// model. Zero sends none.
func WithHistoryWindow(n int) Option { return func(s *ChatService) { s.historyWindow = n } }

func WithClock(now func() time.Time) Option { return func(s *ChatService) { s.now = now } }

func NewChatService(st store.Store, gen Generator, log *zap.Logger, opts ...Option) *ChatService {
	s := &ChatService{
		store:         st,
		generator:     gen,
		log:           log,
		temperature:   0.5,
		historyWindow: 20,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TurnRequest is one user submission. Image is a data URL or bare base64.
type TurnRequest struct {
	UserID  string
	Mode    string
	Message string
	Image   string
}

func parseKey(userID, mode string) (store.Mode, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUser
	}
	m, err := store.ParseMode(mode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	return m, nil
}

// SubmitTurn appends the user message, asks the model for a reply, appends
// the reply and returns its text. The user message is persisted before the
// model is called, so a model or persistence failure after that point leaves
// it in the session without a reply; later turns simply append after it.
func (s *ChatService) SubmitTurn(ctx context.Context, req TurnRequest) (string, error) {
	mode, err := parseKey(req.UserID, req.Mode)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Message) == "" && strings.TrimSpace(req.Image) == "" {
		return "", ErrEmptyTurn
	}
	image, err := DecodeImage(req.Image)
	if err != nil {
		return "", err
	}

	sess, err := s.store.UpsertSession(ctx, req.UserID, mode)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	userMsg := store.Message{
		Role:      store.RoleUser,
		Text:      req.Message,
		Image:     req.Image,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, req.UserID, mode, userMsg); err != nil {
		return "", fmt.Errorf("failed to store user message: %w", err)
	}

	genReq := GenerateRequest{
		SystemInstruction: SystemInstruction,
		Temperature:       s.temperature,
		History:           s.historyTurns(sess.Messages),
		Prompt:            FramePrompt(mode, req.Message),
		Image:             image,
	}
	started := s.now()
	text, err := s.generator.Generate(ctx, genReq)
	if err != nil {
		return "", fmt.Errorf("failed to get model reply: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		text = EmptyResponseText
	}
	s.log.Debug("model reply generated",
		zap.String("mode", mode.String()),
		zap.Int("history", len(genReq.History)),
		zap.Bool("image", image != nil),
		zap.Duration("took", s.now().Sub(started)),
	)

	aiMsg := store.Message{
		Role:      store.RoleAI,
		Text:      text,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, req.UserID, mode, aiMsg); err != nil {
		return "", fmt.Errorf("failed to store model message: %w", err)
	}
	return text, nil
}

func (s *ChatService) historyTurns(msgs []store.Message) []Turn {
	if s.historyWindow <= 0 {
		return nil
	}
	if len(msgs) > s.historyWindow {
		msgs = msgs[len(msgs)-s.historyWindow:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}

// History returns the session messages, or an empty slice when none exist.
func (s *ChatService) History(ctx context.Context, userID, mode string) ([]store.Message, error) {
	m, err := parseKey(userID, mode)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.FindSession(ctx, userID, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if sess == nil {
		return []store.Message{}, nil
	}
	return sess.Messages, nil
}

func (s *ChatService) ClearHistory(ctx context.Context, userID, mode string) error {
	m, err := parseKey(userID, mode)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, userID, m); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Consent reports the stored decision, false when none was recorded.
func (s *ChatService) Consent(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrMissingUser
	}
	rec, err := s.store.GetConsent(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load consent: %w", err)
	}
	return rec != nil && rec.HasConsented, nil
}

func (s *ChatService) SetConsent(ctx context.Context, userID string, accepted bool) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	rec := store.ConsentRecord{UserID: userID, HasConsented: accepted, Timestamp: s.now()}
	if err := s.store.UpsertConsent(ctx, rec); err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}
	return nil
}
