package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fieldsales/crm-api/internal/services"
)

type stubCatalogService struct {
	getFn func(context.Context, string) (services.CatalogEntry, error)
}

func (s *stubCatalogService) GetEntry(ctx context.Context, reference string) (services.CatalogEntry, error) {
	return s.getFn(ctx, reference)
}

func newCatalogRouter(svc services.CatalogService) chi.Router {
	router := chi.NewRouter()
	router.Route("/catalog", NewCatalogHandlers(svc).Routes)
	return router
}

func TestCatalogHandlersGetEntry(t *testing.T) {
	cost := decimal.RequireFromString("2.5")
	svc := &stubCatalogService{getFn: func(_ context.Context, reference string) (services.CatalogEntry, error) {
		return services.CatalogEntry{
			Reference:            reference,
			SKU:                  "OIL-1L",
			DisplayName:          "Olive oil",
			UnitOfMeasure:        "l",
			CategoryReference:    "CAT-OIL",
			LastPurchaseUnitCost: &cost,
			UpdatedAt:            time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	}}

	rr := httptest.NewRecorder()
	newCatalogRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/catalog/SKU-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["reference"] != "SKU-1" || body["sku"] != "OIL-1L" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["lastPurchaseUnitCost"] != "2.5" {
		t.Fatalf("expected unit cost as decimal string, got %v", body["lastPurchaseUnitCost"])
	}
	if body["updatedAt"] != "2024-02-01T00:00:00Z" {
		t.Fatalf("unexpected updatedAt %v", body["updatedAt"])
	}
}

func TestCatalogHandlersGetEntryErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("%w: SKU-404", services.ErrCatalogEntryNotFound), http.StatusNotFound, "catalog_entry_not_found"},
		{"unavailable", fmt.Errorf("%w: timeout", services.ErrCatalogUnavailable), http.StatusServiceUnavailable, services.ErrorKindCatalogUnavailable},
		{"validation", &services.ValidationError{Field: "reference", Message: "is required"}, http.StatusBadRequest, services.ErrorKindValidation},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, "catalog_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCatalogService{getFn: func(context.Context, string) (services.CatalogEntry, error) {
				return services.CatalogEntry{}, tc.err
			}}

			rr := httptest.NewRecorder()
			newCatalogRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/catalog/SKU-404", nil))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tc.wantCode {
				t.Fatalf("expected error %s, got %v", tc.wantCode, body["error"])
			}
		})
	}
}
