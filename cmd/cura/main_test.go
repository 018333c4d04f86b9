package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/api"
	"curaai.dev/cura/internal/client"
	"curaai.dev/cura/internal/core"
	"curaai.dev/cura/internal/store"
)

type scriptedGenerator struct {
	fail atomic.Bool
}

func (g *scriptedGenerator) Generate(_ context.Context, req core.GenerateRequest) (string, error) {
	if g.fail.Load() {
		return "", errors.New("model unavailable")
	}
	return "echo: " + req.Prompt, nil
}

func (g *scriptedGenerator) Close() error { return nil }

type harness struct {
	t     *testing.T
	srv   *httptest.Server
	gen   *scriptedGenerator
	state string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	gen := &scriptedGenerator{}
	log := zap.NewNop()
	svc := core.NewChatService(st, gen, log)
	srv := httptest.NewServer(api.NewRouter(api.NewAPIHandler(svc, st, log), log, api.RouterOptions{AllowedOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, gen: gen, state: filepath.Join(t.TempDir(), "state.yaml")}
}

func (h *harness) run(input string, args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	a := newApp(strings.NewReader(input), &out)
	a.online = func() bool { return true }
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--server", h.srv.URL + "/api", "--state", h.state}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConsentCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "consent")
	require.NoError(t, err)
	assert.Contains(t, out, "Consent: not given")
	assert.Contains(t, out, "not a doctor")

	out, err = h.run("", "consent", "accept")
	require.NoError(t, err)
	assert.Contains(t, out, "Consent recorded.")

	out, err = h.run("", "consent", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Consent: accepted")

	_, err = h.run("", "consent", "maybe")
	assert.Error(t, err)
}

func TestChatRequiresConsent(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("n\n", "chat", "lab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consent is required")

	// accepting at the gate opens the chat and remembers the answer
	out, err := h.run("y\n/quit\n", "chat", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, store.ModeLab.Profile().Greeting)

	out, err = h.run("", "consent", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Consent: accepted")
}

func TestChatTurnHistoryAndExport(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "consent", "accept")
	require.NoError(t, err)

	dir := t.TempDir()
	out, err := h.run("my glucose is 110\n/export "+dir+"\n/quit\n", "chat", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "You: my glucose is 110")
	assert.Contains(t, out, "Cura: echo: Please interpret this lab report. my glucose is 110")

	exported := filepath.Join(dir, client.ExportFilename(store.ModeLab, time.Now()))
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[USER]\nmy glucose is 110\n")

	out, err = h.run("", "history", "show", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "[USER] my glucose is 110")
	assert.Contains(t, out, "[AI] echo: Please interpret this lab report. my glucose is 110")

	// reopening the chat shows the saved conversation instead of the greeting
	out, err = h.run("/quit\n", "chat", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "You: my glucose is 110")
	assert.NotContains(t, out, store.ModeLab.Profile().Greeting)
}

func TestChatFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "consent", "accept")
	require.NoError(t, err)

	h.gen.fail.Store(true)
	input := "what is ibuprofen\n/retry\n"
	var out bytes.Buffer
	a := newApp(strings.NewReader(input), &out)
	a.online = func() bool { return true }
	cmd := newRootCmd(a)
	cmd.SetArgs([]string{"--server", h.srv.URL + "/api", "--state", h.state, "chat", "medication"})

	// the first /retry fails as well; input then ends
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "(not delivered)")
	assert.Equal(t, 2, strings.Count(out.String(), client.RetryText))

	h.gen.fail.Store(false)
	// each failed attempt left a dangling user message on the server
	out2, err := h.run("", "history", "show", "medication")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out2, "[USER] what is ibuprofen"))
	assert.NotContains(t, out2, "[AI]")
}

func TestChatOfflineNotice(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "consent", "accept")
	require.NoError(t, err)

	var out bytes.Buffer
	a := newApp(strings.NewReader("hello\n/quit\n"), &out)
	a.online = func() bool { return false }
	cmd := newRootCmd(a)
	cmd.SetArgs([]string{"--server", h.srv.URL + "/api", "--state", h.state, "chat", "symptom"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), client.OfflineText)

	hist, err := h.run("", "history", "show", "symptom")
	require.NoError(t, err)
	assert.Contains(t, hist, "No saved messages")
}

func TestHistoryClear(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "consent", "accept")
	require.NoError(t, err)
	_, err = h.run("amoxicillin 500mg\n", "chat", "prescription")
	require.NoError(t, err)

	out, err := h.run("n\n", "history", "clear", "prescription")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, err = h.run("", "history", "clear", "prescription", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "History cleared.")

	out, err = h.run("", "history", "show", "prescription")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved messages")
}

func TestChatClearCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "consent", "accept")
	require.NoError(t, err)

	out, err := h.run("fever\n/clear\ny\n/quit\n", "chat", "symptom")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, store.ModeSymptom.Profile().Greeting))

	hist, err := h.run("", "history", "show", "symptom")
	require.NoError(t, err)
	assert.Contains(t, hist, "No saved messages")
}

func TestUnknownMode(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "history", "show", "dental")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	out, err := h.run("", "export", "medication", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved ")

	raw, err := os.ReadFile(filepath.Join(dir, client.ExportFilename(store.ModeMedication, time.Now())))
	require.NoError(t, err)
	assert.Equal(t, "[AI]\n"+store.ModeMedication.Profile().Greeting+"\n", string(raw))
}
