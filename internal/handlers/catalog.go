package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldsales/crm-api/internal/platform/httpx"
	"github.com/fieldsales/crm-api/internal/services"
)

// CatalogHandlers exposes read access to inventory catalog entries.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{reference}", h.getEntry)
}

type catalogEntryPayload struct {
	Reference            string  `json:"reference"`
	SKU                  string  `json:"sku"`
	DisplayName          string  `json:"displayName"`
	UnitOfMeasure        string  `json:"unitOfMeasure"`
	CategoryReference    string  `json:"categoryReference"`
	LastPurchaseUnitCost *string `json:"lastPurchaseUnitCost"`
	UpdatedAt            string  `json:"updatedAt,omitempty"`
}

func (h *CatalogHandlers) getEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	entry, err := h.catalog.GetEntry(ctx, strings.TrimSpace(chi.URLParam(r, "reference")))
	if err != nil {
		switch services.ErrorKind(err) {
		case services.ErrorKindNotFound:
			httpx.WriteError(ctx, w, httpx.NewError("catalog_entry_not_found", "catalog entry not found", http.StatusNotFound))
		case services.ErrorKindValidation:
			httpx.WriteError(ctx, w, httpx.NewError(services.ErrorKindValidation, "reference is required", http.StatusBadRequest).
				WithDetails(map[string]any{"field": "reference"}))
		case services.ErrorKindCatalogUnavailable, services.ErrorKindCanceled:
			httpx.WriteError(ctx, w, httpx.NewError(services.ErrorKindCatalogUnavailable, "the inventory catalog is unavailable, retry later", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog entry", http.StatusInternalServerError))
		}
		return
	}

	payload := catalogEntryPayload{
		Reference:         entry.Reference,
		SKU:               entry.SKU,
		DisplayName:       entry.DisplayName,
		UnitOfMeasure:     entry.UnitOfMeasure,
		CategoryReference: entry.CategoryReference,
		UpdatedAt:         formatTime(entry.UpdatedAt),
	}
	if entry.LastPurchaseUnitCost != nil {
		cost := entry.LastPurchaseUnitCost.String()
		payload.LastPurchaseUnitCost = &cost
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
