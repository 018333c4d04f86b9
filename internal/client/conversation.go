package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"curaai.dev/cura/internal/store"
)

const (
	OfflineText = "I apologize, but it looks like you are offline. Please check your internet connection and try again."
	RetryText   = "I had trouble connecting to the server. Please check your internet and try again."
)

var (
	ErrBusy            = errors.New("a request is already in progress")
	ErrEmptySubmission = errors.New("a message or an attachment is required")
	ErrNothingToRetry  = errors.New("nothing to retry")
	ErrNotConfirmed    = errors.New("clear not confirmed")
	ErrClosed          = errors.New("conversation closed")
)

type State int

const (
	StateHistoryLoading State = iota
	StateIdle
	StateSending
	StateErrorAwaitingRetry
)

func (s State) String() string {
	switch s {
	case StateHistoryLoading:
		return "history-loading"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateErrorAwaitingRetry:
		return "error-awaiting-retry"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DeliveryStatus tracks whether a user message reached the backend.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusConfirmed DeliveryStatus = "confirmed"
	StatusFailed    DeliveryStatus = "failed"
)

// ViewMessage is one entry of the local message list.
type ViewMessage struct {
	Role store.Role
	Text string
	// ImageRef is a local display reference (file name), never the payload.
	ImageRef string
	Status   DeliveryStatus
	// Local marks informational messages that never reached the backend.
	Local bool
}

// Submission is exactly what the user sent, kept for retry.
type Submission struct {
	Text  string
	Image *Attachment
}

// Backend is the subset of Gateway a Conversation drives.
type Backend interface {
	GetHistory(ctx context.Context, mode store.Mode) ([]store.Message, bool)
	ClearHistory(ctx context.Context, mode store.Mode) error
	SubmitTurn(ctx context.Context, mode store.Mode, text, image string) (string, error)
}

// Conversation is the per-mode chat state machine:
// HistoryLoading -> Idle <-> Sending -> (Idle | ErrorAwaitingRetry).
// Only one load or submission is in flight at a time; overlapping calls get
// ErrBusy.
type Conversation struct {
	mode    store.Mode
	backend Backend
	online  func() bool
	log     *zap.Logger

	mu       sync.Mutex
	state    State
	messages []ViewMessage
	last     *Submission
	lastIdx  int
	errText  string
	closed   bool
}

type ConversationOption func(*Conversation)

// WithConnectivity replaces the offline check run before each submission.
func WithConnectivity(online func() bool) ConversationOption {
	return func(c *Conversation) { c.online = online }
}

func WithConversationLogger(l *zap.Logger) ConversationOption {
	return func(c *Conversation) { c.log = l }
}

func NewConversation(mode store.Mode, backend Backend, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		mode:    mode,
		backend: backend,
		online:  Online,
		log:     zap.NewNop(),
		state:   StateHistoryLoading,
		lastIdx: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversation) greeting() []ViewMessage {
	return []ViewMessage{{Role: store.RoleAI, Text: c.mode.Profile().Greeting, Local: true}}
}

// Load fetches the stored history. Unknown or empty history seeds the mode's
// greeting.
func (c *Conversation) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateSending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateHistoryLoading
	c.mu.Unlock()

	saved, ok := c.backend.GetHistory(ctx, c.mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if ok && len(saved) > 0 {
		c.messages = make([]ViewMessage, 0, len(saved))
		for _, m := range saved {
			vm := ViewMessage{Role: m.Role, Text: m.Text}
			if m.Role == store.RoleUser {
				vm.Status = StatusConfirmed
				if m.Image != "" {
					vm.ImageRef = "attachment"
				}
			}
			c.messages = append(c.messages, vm)
		}
	} else {
		c.messages = c.greeting()
	}
	c.state = StateIdle
	return nil
}

// Submit sends text and/or image. When offline it appends a local notice and
// does not contact the backend. A failed send moves to ErrorAwaitingRetry and
// returns the error.
func (c *Conversation) Submit(ctx context.Context, text string, image *Attachment) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateSending || c.state == StateHistoryLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" && image == nil {
		c.mu.Unlock()
		return ErrEmptySubmission
	}

	if !c.online() {
		// the notice replaces any pending retry banner
		c.messages = append(c.messages, ViewMessage{Role: store.RoleAI, Text: OfflineText, Local: true})
		c.errText = ""
		c.last = nil
		c.lastIdx = -1
		c.state = StateIdle
		c.mu.Unlock()
		return nil
	}

	vm := ViewMessage{Role: store.RoleUser, Text: text, Status: StatusPending}
	if image != nil {
		vm.ImageRef = image.Name
	}
	c.messages = append(c.messages, vm)
	c.lastIdx = len(c.messages) - 1
	c.last = &Submission{Text: text, Image: image}
	c.errText = ""
	c.state = StateSending
	sub := *c.last
	c.mu.Unlock()

	return c.send(ctx, sub)
}

// Retry re-sends the remembered failed submission unchanged.
func (c *Conversation) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateErrorAwaitingRetry || c.last == nil {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.state = StateSending
	c.errText = ""
	c.setStatusLocked(StatusPending)
	sub := *c.last
	c.mu.Unlock()

	return c.send(ctx, sub)
}

func (c *Conversation) send(ctx context.Context, sub Submission) error {
	var image string
	if sub.Image != nil {
		image = sub.Image.DataURL()
	}
	started := time.Now()
	reply, err := c.backend.SubmitTurn(ctx, c.mode, sub.Text, image)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// The screen went away; drop the result.
		return ErrClosed
	}
	if err != nil {
		c.log.Warn("chat turn failed", zap.String("mode", string(c.mode)), zap.Error(err))
		c.state = StateErrorAwaitingRetry
		c.errText = RetryText
		c.setStatusLocked(StatusFailed)
		return err
	}

	c.log.Debug("chat turn completed", zap.String("mode", string(c.mode)), zap.Duration("took", time.Since(started)))
	c.setStatusLocked(StatusConfirmed)
	c.messages = append(c.messages, ViewMessage{Role: store.RoleAI, Text: reply})
	c.last = nil
	c.lastIdx = -1
	c.state = StateIdle
	return nil
}

func (c *Conversation) setStatusLocked(s DeliveryStatus) {
	if c.lastIdx >= 0 && c.lastIdx < len(c.messages) {
		c.messages[c.lastIdx].Status = s
	}
}

// Clear deletes the server history after confirm returns true and resets the
// view to the greeting. The backend error, if any, is returned after the local
// reset; callers may ignore it.
func (c *Conversation) Clear(ctx context.Context, confirm func() bool) error {
	if confirm == nil || !confirm() {
		return ErrNotConfirmed
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateSending || c.state == StateHistoryLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	err := c.backend.ClearHistory(ctx, c.mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.messages = c.greeting()
	c.errText = ""
	c.last = nil
	c.lastIdx = -1
	c.state = StateIdle
	return err
}

// Export renders the current view as a plain-text transcript.
func (c *Conversation) Export(now time.Time) (filename string, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ExportFilename(c.mode, now), FormatTranscript(c.messages)
}

// Close marks the conversation torn down; in-flight results are discarded.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conversation) Mode() store.Mode { return c.mode }

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrorText is the retry banner text, empty unless awaiting retry.
func (c *Conversation) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

func (c *Conversation) Messages() []ViewMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ViewMessage(nil), c.messages...)
}

// LastSubmission is the submission a Retry would resend, or nil.
func (c *Conversation) LastSubmission() *Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	sub := *c.last
	return &sub
}
