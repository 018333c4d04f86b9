package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/store"
)

const (
	storagePrefix = "cura_ai_"
	keyUserID     = storagePrefix + "user_id"
	keyConsent    = storagePrefix + "consent"

	DefaultConsentTimeout = 1 * time.Second
	DefaultHistoryTimeout = 2 * time.Second
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Gateway talks to the backend on behalf of one anonymous user. Reads of
// consent and history are bounded by short timeouts and fall back instead of
// failing; the chat turn has no timeout.
type Gateway struct {
	baseURL        string
	httpClient     *http.Client
	kv             KeyValueStore
	log            *zap.Logger
	consentTimeout time.Duration
	historyTimeout time.Duration

	idMu sync.Mutex
}

type GatewayOption func(*Gateway)

func WithHTTPClient(c *http.Client) GatewayOption { return func(g *Gateway) { g.httpClient = c } }
func WithLogger(l *zap.Logger) GatewayOption       { return func(g *Gateway) { g.log = l } }

// WithReadTimeouts overrides the consent and history read timeouts.
func WithReadTimeouts(consent, history time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.consentTimeout = consent
		g.historyTimeout = history
	}
}

// NewGateway targets baseURL, the API root (e.g. http://localhost:3000/api).
func NewGateway(baseURL string, kv KeyValueStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		kv:             kv,
		log:            zap.NewNop(),
		consentTimeout: DefaultConsentTimeout,
		historyTimeout: DefaultHistoryTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Identity returns the stored anonymous user token, generating and storing
// one on first use. The token is returned even when storing it failed.
func (g *Gateway) Identity() (string, error) {
	g.idMu.Lock()
	defer g.idMu.Unlock()

	if id, ok := g.kv.Get(keyUserID); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := g.kv.Set(keyUserID, id); err != nil {
		return id, fmt.Errorf("persisting identity: %w", err)
	}
	return id, nil
}

func (g *Gateway) identity() string {
	id, err := g.Identity()
	if err != nil {
		g.log.Warn("identity not persisted", zap.Error(err))
	}
	return id
}

func (g *Gateway) cachedConsent() bool {
	v, _ := g.kv.Get(keyConsent)
	return v == "true"
}

// CheckConsent asks the backend for the consent flag and falls back to the
// locally cached value on timeout, network failure, or a non-2xx status.
func (g *Gateway) CheckConsent(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.consentTimeout)
	defer cancel()

	var resp struct {
		HasConsented bool `json:"hasConsented"`
	}
	path := "/consent/" + url.PathEscape(g.identity())
	if err := g.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		g.log.Debug("consent check fell back to local cache", zap.Error(err))
		return g.cachedConsent()
	}
	return resp.HasConsented
}

// SetConsent records the decision locally first, then propagates it to the
// backend. The propagation error is logged and returned; callers may ignore it.
func (g *Gateway) SetConsent(ctx context.Context, accepted bool) error {
	if err := g.kv.Set(keyConsent, strconv.FormatBool(accepted)); err != nil {
		g.log.Warn("could not cache consent locally", zap.Error(err))
	}

	body := map[string]any{"userId": g.identity(), "hasConsented": accepted}
	if err := g.doJSON(ctx, http.MethodPost, "/consent", nil, body, nil); err != nil {
		g.log.Warn("could not sync consent to server (running offline mode)", zap.Error(err))
		return fmt.Errorf("syncing consent: %w", err)
	}
	return nil
}

// GetHistory returns the session messages. ok is false when the history is
// unknown (backend unreachable, slow, or failing), which is distinct from an
// empty history.
func (g *Gateway) GetHistory(ctx context.Context, mode store.Mode) (messages []store.Message, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, g.historyTimeout)
	defer cancel()

	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	q := url.Values{"userId": {g.identity()}, "mode": {string(mode)}}
	if err := g.doJSON(ctx, http.MethodGet, "/history", q, nil, &resp); err != nil {
		g.log.Debug("history unavailable", zap.String("mode", string(mode)), zap.Error(err))
		return nil, false
	}
	if resp.Messages == nil {
		resp.Messages = []store.Message{}
	}
	return resp.Messages, true
}

// ClearHistory asks the backend to delete the session. Failure is logged and
// returned; the caller clears its local view regardless.
func (g *Gateway) ClearHistory(ctx context.Context, mode store.Mode) error {
	q := url.Values{"userId": {g.identity()}, "mode": {string(mode)}}
	if err := g.doJSON(ctx, http.MethodDelete, "/history", q, nil, nil); err != nil {
		g.log.Warn("failed to clear messages on server", zap.String("mode", string(mode)), zap.Error(err))
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// SubmitTurn posts one chat turn and returns the model's reply. image is a
// data URL or empty.
func (g *Gateway) SubmitTurn(ctx context.Context, mode store.Mode, text, image string) (string, error) {
	body := map[string]any{
		"userId":  g.identity(),
		"mode":    string(mode),
		"message": text,
	}
	if image != "" {
		body["image"] = image
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("submitting turn: %w", err)
	}
	return resp.Text, nil
}

// Modes fetches the mode catalog from the backend.
func (g *Gateway) Modes(ctx context.Context) ([]store.Profile, error) {
	var profiles []store.Profile
	if err := g.doJSON(ctx, http.MethodGet, "/modes", nil, nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (g *Gateway) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
