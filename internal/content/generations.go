package content

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/principal"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
)

// Generations is the slice of GenerationStore the poll handler depends on.
type Generations interface {
	Get(ctx context.Context, id uuid.UUID) (store.Generation, error)
}

// Variants is the slice of VariantStore the poll handler depends on.
type Variants interface {
	ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]store.Variant, error)
}

// GenerationHandler adapts generation/variant reads to §6.1's polling endpoint.
type GenerationHandler struct {
	generations Generations
	variants    Variants
}

// NewGenerationHandler builds a GenerationHandler.
func NewGenerationHandler(generations Generations, variants Variants) *GenerationHandler {
	return &GenerationHandler{generations: generations, variants: variants}
}

// Routes returns a chi.Router with the generation polling route mounted.
func (h *GenerationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleGet)
	return r
}

type variantResponse struct {
	ID           string `json:"id"`
	VariantIndex int    `json:"variantIndex"`
	Content      string `json:"content"`
}

type generationResponse struct {
	ID                  string            `json:"id"`
	DraftID             string            `json:"draftId"`
	Status              string            `json:"status"`
	ErrorMessage        *string           `json:"errorMessage,omitempty"`
	Variants            []variantResponse `json:"variants,omitempty"`
	SuggestedIntervalMs int64             `json:"suggestedIntervalMs,omitempty"`
	EstimatedWaitMs     int64             `json:"estimatedWaitMs,omitempty"`
}

// pollInterval is the client polling cadence suggested while a generation
// is still in flight (§6.1).
const pollInterval = 2 * time.Second

func (h *GenerationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "invalid generation id")
		return
	}

	gen, err := h.generations.Get(r.Context(), id)
	if err != nil || gen.OwnerID != p.UserID {
		httpserver.RespondError(w, httpserver.CodeNotFound, "generation not found")
		return
	}

	resp := generationResponse{
		ID:           gen.ID.String(),
		DraftID:      gen.DraftID.String(),
		Status:       string(gen.Status),
		ErrorMessage: gen.ErrorMessage,
	}

	switch gen.Status {
	case store.GenerationCompleted, store.GenerationProcessing:
		variants, err := h.variants.ListByGeneration(r.Context(), gen.ID)
		if err != nil {
			httpserver.RespondError(w, httpserver.CodeInternalError, "an internal error occurred")
			return
		}
		for _, v := range variants {
			resp.Variants = append(resp.Variants, variantResponse{
				ID:           v.ID.String(),
				VariantIndex: v.VariantIndex,
				Content:      v.Content,
			})
		}
	case store.GenerationPending:
		resp.SuggestedIntervalMs = pollInterval.Milliseconds()
		resp.EstimatedWaitMs = queue.EstimatedWait(queue.LaneInteractive).Milliseconds()
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
