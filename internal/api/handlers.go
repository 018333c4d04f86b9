package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/core"
	"curaai.dev/cura/internal/store"
)

const genericFailure = "Failed to process request."

type APIHandler struct {
	chatService *core.ChatService
	store       store.Store
	log         *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, st store.Store, log *zap.Logger) *APIHandler {
	return &APIHandler{chatService: cs, store: st, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a JSON request body, answering 413 when the size limit
// cut it off and 400 for anything else malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
	return false
}

// writeServiceError maps validation errors to 400 and everything else to a
// generic 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if core.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error(op+" failed",
		zap.Error(err),
		zap.Bool("store_unavailable", errors.Is(err, store.ErrUnavailable)),
		zap.String("request_id", requestID(r)),
	)
	writeError(w, http.StatusInternalServerError, genericFailure)
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Cura AI Backend is running."))
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok"}
	if err := h.store.Ping(ctx); err != nil {
		resp.Store = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ModesHandler(w http.ResponseWriter, r *http.Request) {
	profiles := make([]store.Profile, 0, len(store.Modes))
	for _, m := range store.Modes {
		profiles = append(profiles, m.Profile())
	}
	writeJSON(w, http.StatusOK, profiles)
}

type consentResponse struct {
	HasConsented bool `json:"hasConsented"`
}

func (h *APIHandler) GetConsentHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ok, err := h.chatService.Consent(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "get consent", err)
		return
	}
	writeJSON(w, http.StatusOK, consentResponse{HasConsented: ok})
}

type SetConsentRequest struct {
	UserID       string `json:"userId"`
	HasConsented bool   `json:"hasConsented"`
}

func (h *APIHandler) SetConsentHandler(w http.ResponseWriter, r *http.Request) {
	var req SetConsentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.chatService.SetConsent(r.Context(), req.UserID, req.HasConsented); err != nil {
		h.writeServiceError(w, r, "set consent", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type historyResponse struct {
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	messages, err := h.chatService.History(r.Context(), q.Get("userId"), q.Get("mode"))
	if err != nil {
		h.writeServiceError(w, r, "get history", err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := h.chatService.ClearHistory(r.Context(), q.Get("userId"), q.Get("mode")); err != nil {
		h.writeServiceError(w, r, "clear history", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type ChatRequest struct {
	UserID  string `json:"userId"`
	Mode    string `json:"mode"`
	Message string `json:"message"`
	Image   string `json:"image,omitempty"`
}

type ChatResponse struct {
	Text string `json:"text"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	text, err := h.chatService.SubmitTurn(r.Context(), core.TurnRequest{
		UserID:  req.UserID,
		Mode:    req.Mode,
		Message: req.Message,
		Image:   req.Image,
	})
	if err != nil {
		h.writeServiceError(w, r, "chat turn", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Text: text})
}
