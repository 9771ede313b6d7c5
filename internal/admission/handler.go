package admission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/principal"
)

// Handler adapts Service to the HTTP surface's admission endpoints (§6.1).
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler over svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns a chi.Router with the admission routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/create", h.handleCreate)
	r.Post("/regenerate", h.handleRegenerate)
	return r
}

type createResponse struct {
	DraftID       string `json:"draftId"`
	GenerationID  string `json:"generationId"`
	Status        string `json:"status"`
	EstimatedWait int64  `json:"estimatedWait"`
	Duplicated    bool   `json:"duplicated,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	requestID := httpserver.RequestIDFromContext(r.Context())
	result, apiErr := h.svc.Create(r.Context(), requestID, p, req)
	if apiErr != nil {
		httpserver.WriteHTTP(w, apiErr)
		return
	}

	status := http.StatusAccepted
	if result.Duplicated {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, createResponse{
		DraftID:       result.DraftID.String(),
		GenerationID:  result.GenerationID.String(),
		Status:        result.Status,
		EstimatedWait: result.EstimatedWait.Milliseconds(),
		Duplicated:    result.Duplicated,
	})
}

type regenerateResponse struct {
	DraftID       string `json:"draftId"`
	GenerationID  string `json:"generationId"`
	Status        string `json:"status"`
	RegenType     string `json:"regenType"`
	EstimatedWait int64  `json:"estimatedWait"`
	Duplicated    bool   `json:"duplicated,omitempty"`
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	var req RegenerateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	requestID := httpserver.RequestIDFromContext(r.Context())
	result, apiErr := h.svc.Regenerate(r.Context(), requestID, p, req)
	if apiErr != nil {
		httpserver.WriteHTTP(w, apiErr)
		return
	}

	status := http.StatusAccepted
	if result.Duplicated {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, regenerateResponse{
		DraftID:       result.DraftID.String(),
		GenerationID:  result.GenerationID.String(),
		Status:        result.Status,
		RegenType:     string(result.RegenType),
		EstimatedWait: result.EstimatedWait.Milliseconds(),
		Duplicated:    result.Duplicated,
	})
}
