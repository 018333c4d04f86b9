package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/store"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []GenerateRequest
	reply    func(req GenerateRequest) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(req)
	}
	return "reply to " + req.Prompt, nil
}

func (f *fakeGenerator) Close() error { return nil }

func (f *fakeGenerator) last(t *testing.T) GenerateRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

// failingStore fails appends of the given role.
type failingStore struct {
	*store.MemoryStore
	failRole store.Role
}

func (s *failingStore) AppendMessage(ctx context.Context, userID string, mode store.Mode, msg store.Message) error {
	if msg.Role == s.failRole {
		return errors.New("disk full")
	}
	return s.MemoryStore.AppendMessage(ctx, userID, mode, msg)
}

func newService(st store.Store, gen Generator, opts ...Option) *ChatService {
	return NewChatService(st, gen, zap.NewNop(), opts...)
}

func TestFramePrompt(t *testing.T) {
	assert.Equal(t, "Please interpret this lab report. my glucose is 110", FramePrompt(store.ModeLab, "my glucose is 110"))
	assert.Equal(t, "my glucose is 110", FramePrompt(store.ModeSymptom, "my glucose is 110"))
	assert.Equal(t, "Please explain this prescription.", FramePrompt(store.ModePrescription, ""))
	assert.Equal(t,
		"Please provide educational information about the following, without giving a prescription or medical advice: ibuprofen",
		FramePrompt(store.ModeMedication, "ibuprofen"))
}

func TestSystemInstructionContract(t *testing.T) {
	for _, want := range []string{
		"Empathy First",
		"Clarity and Simplicity",
		"YOU ARE NOT A DOCTOR",
		"Action-Oriented Guidance",
		"Privacy",
		"Onset and Duration",
		"On a scale from 1 to 10",
		"Triggers/Patterns",
		"Associated Symptoms",
		"do not suggest any specific medications",
		"Under no circumstances should you ever 'prescribe'",
	} {
		assert.Contains(t, SystemInstruction, want)
	}
}

func TestSubmitTurnFramesPromptPerMode(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newService(store.NewMemoryStore(), gen, WithTemperature(0.5))
	ctx := context.Background()

	_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "lab", Message: "my glucose is 110"})
	require.NoError(t, err)
	req := gen.last(t)
	assert.True(t, strings.HasPrefix(req.Prompt, "Please interpret this lab report."), req.Prompt)
	assert.Equal(t, SystemInstruction, req.SystemInstruction)
	assert.Equal(t, float32(0.5), req.Temperature)

	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: "my glucose is 110"})
	require.NoError(t, err)
	assert.Equal(t, "my glucose is 110", gen.last(t).Prompt)
}

func TestSubmitTurnStoresRawUserText(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(st, &fakeGenerator{})

	_, err := svc.SubmitTurn(context.Background(), TurnRequest{UserID: "u1", Mode: "lab", Message: "LDL 160"})
	require.NoError(t, err)

	msgs, err := svc.History(context.Background(), "u1", "lab")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "LDL 160", msgs[0].Text)
}

func TestNTurnsYieldTwoNMessagesInOrder(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(st, &fakeGenerator{})
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: strings.Repeat("x", i+1)})
		require.NoError(t, err)
	}

	msgs, err := svc.History(ctx, "u1", "symptom")
	require.NoError(t, err)
	require.Len(t, msgs, 2*n)
	for i, m := range msgs {
		if i%2 == 0 {
			assert.Equal(t, store.RoleUser, m.Role)
			assert.Equal(t, strings.Repeat("x", i/2+1), m.Text)
		} else {
			assert.Equal(t, store.RoleAI, m.Role)
			assert.Equal(t, "reply to "+strings.Repeat("x", i/2+1), m.Text)
		}
	}
}

func TestMedicationScenario(t *testing.T) {
	gen := &fakeGenerator{reply: func(GenerateRequest) (string, error) { return "Ibuprofen is an NSAID...", nil }}
	svc := newService(store.NewMemoryStore(), gen)
	ctx := context.Background()

	text, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "medication", Message: "ibuprofen"})
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen is an NSAID...", text)

	req := gen.last(t)
	assert.True(t, strings.HasPrefix(req.Prompt, "Please provide educational information about the following, without giving a prescription or medical advice:"))
	assert.Contains(t, req.SystemInstruction, "Under no circumstances should you ever 'prescribe' or 'suggest' a specific drug, dose")
	assert.Nil(t, req.Image)

	msgs, err := svc.History(ctx, "u1", "medication")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "ibuprofen", msgs[0].Text)
	assert.Equal(t, store.RoleAI, msgs[1].Role)
}

func TestSubmitTurnSendsPriorHistory(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newService(store.NewMemoryStore(), gen, WithHistoryWindow(2))
	ctx := context.Background()

	for _, msg := range []string{"headache", "since monday", "about 6"} {
		_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: msg})
		require.NoError(t, err)
	}

	req := gen.last(t)
	require.Len(t, req.History, 2)
	assert.Equal(t, Turn{Role: store.RoleUser, Text: "since monday"}, req.History[0])
	assert.Equal(t, store.RoleAI, req.History[1].Role)
	assert.Equal(t, "about 6", req.Prompt)
}

func TestSubmitTurnModelFailureLeavesDanglingUserMessage(t *testing.T) {
	gen := &fakeGenerator{reply: func(GenerateRequest) (string, error) { return "", errors.New("503 from model") }}
	svc := newService(store.NewMemoryStore(), gen)
	ctx := context.Background()

	_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: "chest pain"})
	require.Error(t, err)
	assert.False(t, IsValidation(err))

	msgs, err := svc.History(ctx, "u1", "symptom")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)

	// A retry appends again instead of repairing the dangling message.
	gen.reply = nil
	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: "chest pain"})
	require.NoError(t, err)
	msgs, err = svc.History(ctx, "u1", "symptom")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []store.Role{store.RoleUser, store.RoleUser, store.RoleAI}, []store.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role})
}

func TestSubmitTurnPersistenceFailure(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), failRole: store.RoleAI}
	svc := newService(st, &fakeGenerator{})

	_, err := svc.SubmitTurn(context.Background(), TurnRequest{UserID: "u1", Mode: "lab", Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store model message")
}

func TestSubmitTurnUnavailableStore(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newService(store.Unavailable(errors.New("no db")), gen)

	_, err := svc.SubmitTurn(context.Background(), TurnRequest{UserID: "u1", Mode: "lab", Message: "x"})
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, gen.requests, "model must not be called when the session cannot be loaded")
}

func TestSubmitTurnValidation(t *testing.T) {
	svc := newService(store.NewMemoryStore(), &fakeGenerator{})
	ctx := context.Background()

	_, err := svc.SubmitTurn(ctx, TurnRequest{Mode: "lab", Message: "x"})
	assert.ErrorIs(t, err, ErrMissingUser)
	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "dental", Message: "x"})
	assert.ErrorIs(t, err, ErrInvalidMode)
	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "lab", Message: "  "})
	assert.ErrorIs(t, err, ErrEmptyTurn)
	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "lab", Image: "data:image/png;base64,%%%"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.True(t, IsValidation(err))
}

func TestSubmitTurnWithImageOnly(t *testing.T) {
	gen := &fakeGenerator{}
	st := store.NewMemoryStore()
	svc := newService(st, gen)
	img := "data:image/jpeg;base64,/9j/4AAQSkZJRgABAQ=="

	_, err := svc.SubmitTurn(context.Background(), TurnRequest{UserID: "u1", Mode: "prescription", Image: img})
	require.NoError(t, err)

	req := gen.last(t)
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/jpeg", req.Image.MIMEType)
	assert.Equal(t, "Please explain this prescription.", req.Prompt)

	msgs, err := svc.History(context.Background(), "u1", "prescription")
	require.NoError(t, err)
	assert.Equal(t, img, msgs[0].Image)
}

func TestEmptyModelReplyIsReplaced(t *testing.T) {
	gen := &fakeGenerator{reply: func(GenerateRequest) (string, error) { return "  ", nil }}
	svc := newService(store.NewMemoryStore(), gen)

	text, err := svc.SubmitTurn(context.Background(), TurnRequest{UserID: "u1", Mode: "symptom", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, EmptyResponseText, text)
}

func TestClearHistoryStartsFreshSession(t *testing.T) {
	svc := newService(store.NewMemoryStore(), &fakeGenerator{})
	ctx := context.Background()

	_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "lab", Message: "one"})
	require.NoError(t, err)
	require.NoError(t, svc.ClearHistory(ctx, "u1", "lab"))

	msgs, err := svc.History(ctx, "u1", "lab")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NotNil(t, msgs)

	_, err = svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "lab", Message: "two"})
	require.NoError(t, err)
	msgs, err = svc.History(ctx, "u1", "lab")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
}

func TestConsent(t *testing.T) {
	svc := newService(store.NewMemoryStore(), &fakeGenerator{})
	ctx := context.Background()

	ok, err := svc.Consent(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SetConsent(ctx, "u1", true))
	ok, err = svc.Consent(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, svc.SetConsent(ctx, "", true), ErrMissingUser)
}

// Concurrent turns for the same key are not serialized: both model calls are
// in flight at once and the history each one saw depends on timing. Both
// turns are still persisted.
func TestConcurrentTurnsSameKey(t *testing.T) {
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	gen := &fakeGenerator{reply: func(req GenerateRequest) (string, error) {
		entered.Done()
		<-release
		return "ok", nil
	}}
	st := store.NewMemoryStore()
	svc := newService(st, gen)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, msg := range []string{"a", "b"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			_, err := svc.SubmitTurn(ctx, TurnRequest{UserID: "u1", Mode: "symptom", Message: msg})
			assert.NoError(t, err)
		}(msg)
	}
	entered.Wait()
	close(release)
	wg.Wait()

	assert.Len(t, gen.requests, 2)
	msgs, err := svc.History(ctx, "u1", "symptom")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}
