package content

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/principal"
	"github.com/wisbric/admissiond/internal/store"
)

// Assets is the slice of AssetStore the library handler depends on.
type Assets interface {
	Create(ctx context.Context, p store.CreateAssetParams) (store.Asset, error)
	List(ctx context.Context, ownerID uuid.UUID, f store.ListAssetsFilters, after *store.AssetCursor, limit int) ([]store.Asset, error)
	Archive(ctx context.Context, ownerID, id uuid.UUID) error
}

// AssetHandler adapts an Assets store to the library HTTP surface
// (SUPPLEMENT: Library asset surface).
type AssetHandler struct {
	assets Assets
}

// NewAssetHandler builds an AssetHandler over assets.
func NewAssetHandler(assets Assets) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// Routes returns a chi.Router with the library routes mounted.
func (h *AssetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleSave)
	r.Get("/", h.handleList)
	r.Post("/{id}/archive", h.handleArchive)
	return r
}

type saveAssetRequest struct {
	DraftID   *string  `json:"draftId" validate:"omitempty,uuid"`
	VariantID *string  `json:"variantId" validate:"omitempty,uuid"`
	Title     *string  `json:"title" validate:"omitempty,max=200"`
	Content   *string  `json:"content" validate:"omitempty,max=4000"`
	Platform  *string  `json:"platform" validate:"omitempty,oneof=tiktok instagram_reels youtube_shorts"`
	Tags      []string `json:"tags" validate:"omitempty,max=20,dive,max=40"`
}

type assetResponse struct {
	ID        string   `json:"id"`
	DraftID   *string  `json:"draftId,omitempty"`
	VariantID *string  `json:"variantId,omitempty"`
	Title     *string  `json:"title,omitempty"`
	Content   *string  `json:"content,omitempty"`
	Platform  *string  `json:"platform,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"createdAt"`
}

func toAssetResponse(a store.Asset) assetResponse {
	resp := assetResponse{
		ID:        a.ID.String(),
		Title:     a.Title,
		Content:   a.Content,
		Tags:      a.Tags,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.DraftID != nil {
		s := a.DraftID.String()
		resp.DraftID = &s
	}
	if a.VariantID != nil {
		s := a.VariantID.String()
		resp.VariantID = &s
	}
	if a.Platform != nil {
		s := string(*a.Platform)
		resp.Platform = &s
	}
	return resp
}

func parseOptionalUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func (h *AssetHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	var req saveAssetRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var platform *store.Platform
	if req.Platform != nil {
		pf := store.Platform(*req.Platform)
		platform = &pf
	}

	asset, err := h.assets.Create(r.Context(), store.CreateAssetParams{
		OwnerID:   p.UserID,
		DraftID:   parseOptionalUUID(req.DraftID),
		VariantID: parseOptionalUUID(req.VariantID),
		Title:     req.Title,
		Content:   req.Content,
		Platform:  platform,
		Tags:      req.Tags,
	})
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInternalError, "an internal error occurred")
		return
	}
	httpserver.Respond(w, http.StatusCreated, toAssetResponse(asset))
}

func (h *AssetHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, err.Error())
		return
	}

	var filters store.ListAssetsFilters
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := store.AssetStatus(raw)
		filters.Status = &s
	}
	if raw := r.URL.Query().Get("platform"); raw != "" {
		pf := store.Platform(raw)
		filters.Platform = &pf
	}
	if raw := r.URL.Query().Get("tags"); raw != "" {
		filters.Tags = strings.Split(raw, ",")
	}

	var after *store.AssetCursor
	if params.After != nil {
		after = &store.AssetCursor{CreatedAt: params.After.CreatedAt, ID: params.After.ID}
	}

	assets, err := h.assets.List(r.Context(), p.UserID, filters, after, params.Limit+1)
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInternalError, "an internal error occurred")
		return
	}

	page := httpserver.NewCursorPage(assets, params.Limit, func(a store.Asset) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})

	items := make([]assetResponse, 0, len(page.Items))
	for _, a := range page.Items {
		items = append(items, toAssetResponse(a))
	}
	httpserver.Respond(w, http.StatusOK, httpserver.CursorPage[assetResponse]{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *AssetHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, httpserver.CodeUnauthorized, "no authenticated principal")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, httpserver.CodeInvalidRequest, "invalid asset id")
		return
	}
	if err := h.assets.Archive(r.Context(), p.UserID, id); err != nil {
		httpserver.RespondError(w, httpserver.CodeNotFound, "asset not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"archived": true})
}
