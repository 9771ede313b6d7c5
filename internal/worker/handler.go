package worker

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/queue"
)

// Handler adapts Pipeline to the worker ingress HTTP surface (§6.1's
// POST /api/worker/generate).
type Handler struct {
	pipeline       *Pipeline
	currentSignKey string
	nextSignKey    string
	localDevBypass bool
}

// NewHandler builds a Handler. localDevBypass mirrors cfg.IsLocalDev():
// when true, a request carrying X-Local-Dev: true skips signature
// verification entirely (§4.7 step 1, §6.5).
func NewHandler(pipeline *Pipeline, currentSignKey, nextSignKey string, localDevBypass bool) *Handler {
	return &Handler{
		pipeline:       pipeline,
		currentSignKey: currentSignKey,
		nextSignKey:    nextSignKey,
		localDevBypass: localDevBypass,
	}
}

// Routes returns a chi.Router with the worker ingress route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate", h.handleGenerate)
	return r
}

type workerResponse struct {
	Success     bool  `json:"success"`
	ShouldRetry bool  `json:"shouldRetry"`
	RetryAfter  int64 `json:"retryAfter,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "could not read request body")
		return
	}

	// Step 1: verify signature, or honor the local-dev bypass.
	if !(h.localDevBypass && r.Header.Get("X-Local-Dev") == "true") {
		if err := queue.Verify(h.currentSignKey, h.nextSignKey, body, r.Header.Get("upstash-signature")); err != nil {
			httpserver.RespondError(w, httpserver.CodeUnauthorized, "invalid job signature")
			return
		}
	}

	// Step 2: decode & validate.
	var env queue.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "malformed job envelope")
		return
	}
	if env.Type != "generation" {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "unrecognized job type")
		return
	}

	outcome := h.pipeline.Process(r.Context(), env)

	status := http.StatusOK
	if outcome.ShouldRetry {
		status = http.StatusInternalServerError
	}
	httpserver.Respond(w, status, workerResponse{
		Success:     !outcome.ShouldRetry,
		ShouldRetry: outcome.ShouldRetry,
		RetryAfter:  outcome.RetryAfter.Milliseconds(),
	})
}
