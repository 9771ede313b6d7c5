// Package content implements the draft/generation/library read-and-mutate
// HTTP surface that sits alongside the Admission Pipeline (§6.1, SUPPLEMENT
// sections): owner-scoped CRUD over durable state the admission and worker
// pipelines already write, with no enforcement-facade involvement of its
// own. Grounded on internal/admission/handler.go's handler shape, adapted
// from "admit a job" to "read/patch a resource".
package content

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/principal"
	"github.com/wisbric/admissiond/internal/store"
)

// Drafts is the slice of DraftStore the handler depends on.
type Drafts interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (store.Draft, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, p store.UpdateDraftParams) (store.Draft, error)
	Archive(ctx context.Context, ownerID, id uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID, f store.ListDraftsFilters, limit int, beforeCreatedAt *time.Time) ([]store.Draft, error)
}

func marshalSettings(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DraftHandler adapts a Drafts store to the draft HTTP surface.
type DraftHandler struct {
	drafts Drafts
}

// NewDraftHandler builds a DraftHandler over drafts.
func NewDraftHandler(drafts Drafts) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// Routes returns a chi.Router with the draft routes mounted.
func (h *DraftHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handlePatch)
	r.Post("/{id}/archive", h.handleArchive)
	return r
}

type draftResponse struct {
	ID                string  `json:"id"`
	Title             *string `json:"title"`
	Prompt            string  `json:"prompt"`
	Platform          string  `json:"platform"`
	SelectedVariantID *string `json:"selectedVariantId,omitempty"`
	IsArchived        bool    `json:"isArchived"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

func toDraftResponse(d store.Draft) draftResponse {
	resp := draftResponse{
		ID:         d.ID.String(),
		Title:      d.Title,
		Prompt:     d.Prompt,
		Platform:   string(d.Platform),
		IsArchived: d.IsArchived,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
	if d.SelectedVariantID != nil {
		s := d.SelectedVariantID.String()
		resp.SelectedVariantID = &s
	}
	return resp
}

func draftIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "invalid draft id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *DraftHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}
	id, ok := draftIDFromPath(w, r)
	if !ok {
		return
	}

	draft, err := h.drafts.Get(r.Context(), p.UserID, id)
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeNotFound, "draft not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, toDraftResponse(draft))
}

type patchDraftRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Prompt   *string `json:"prompt" validate:"omitempty,min=1,max=4000"`
	Settings any     `json:"settings"`
}

func (h *DraftHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}
	id, ok := draftIDFromPath(w, r)
	if !ok {
		return
	}

	var req patchDraftRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var settings []byte
	if req.Settings != nil {
		if b, err := marshalSettings(req.Settings); err == nil {
			settings = b
		}
	}

	draft, err := h.drafts.Update(r.Context(), p.UserID, id, store.UpdateDraftParams{
		Title:    req.Title,
		Prompt:   req.Prompt,
		Settings: settings,
	})
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeNotFound, "draft not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, toDraftResponse(draft))
}

func (h *DraftHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}
	id, ok := draftIDFromPath(w, r)
	if !ok {
		return
	}
	if err := h.drafts.Archive(r.Context(), p.UserID, id); err != nil {
		httpserver.RespondError(w, httpserver.CodeNotFound, "draft not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"archived": true})
}

func (h *DraftHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	limit := 20
	drafts, err := h.drafts.List(r.Context(), p.UserID, store.ListDraftsFilters{}, limit, nil)
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInternalError, "an internal error occurred")
		return
	}

	out := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, toDraftResponse(d))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"drafts": out})
}
