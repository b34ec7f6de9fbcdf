package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/fieldsales/crm-api/internal/domain"
	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
	"github.com/fieldsales/crm-api/internal/repositories"
)

const inventoryCollection = "inventory"

// CatalogRepository reads catalog entries from the inventory collection.
type CatalogRepository struct {
	entries *pfirestore.BaseRepository[catalogDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	entries := pfirestore.NewBaseRepository[catalogDocument](provider, inventoryCollection, nil, nil)
	return &CatalogRepository{entries: entries}, nil
}

// FindEntry loads a single catalog entry by document ID.
func (r *CatalogRepository) FindEntry(ctx context.Context, reference string) (domain.CatalogEntry, error) {
	if r == nil || r.entries == nil {
		return domain.CatalogEntry{}, errors.New("catalog repository not initialised")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.CatalogEntry{}, pfirestore.NewNotFoundError("inventory.get", errors.New("catalog reference is required"))
	}

	doc, err := r.entries.Get(ctx, reference)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	entry, err := decodeCatalogDocument(doc.ID, doc.Data)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = doc.UpdateTime
	}
	return entry, nil
}

// catalogDocument mirrors the inventory schema. lastPurchaseUnitCost has been written both as a
// number and as a decimal string over time, so it is decoded loosely.
type catalogDocument struct {
	SKU                  string    `firestore:"sku"`
	DisplayName          string    `firestore:"displayName"`
	UnitOfMeasure        string    `firestore:"unitOfMeasure"`
	CategoryReference    string    `firestore:"categoryReference"`
	LastPurchaseUnitCost any       `firestore:"lastPurchaseUnitCost"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

func decodeCatalogDocument(id string, doc catalogDocument) (domain.CatalogEntry, error) {
	cost, err := decodeUnitCost(doc.LastPurchaseUnitCost)
	if err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("decode catalog entry %s: %w", id, err)
	}
	return domain.CatalogEntry{
		Reference:            id,
		SKU:                  strings.TrimSpace(doc.SKU),
		DisplayName:          strings.TrimSpace(doc.DisplayName),
		UnitOfMeasure:        strings.TrimSpace(doc.UnitOfMeasure),
		CategoryReference:    strings.TrimSpace(doc.CategoryReference),
		LastPurchaseUnitCost: cost,
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}, nil
}

func decodeUnitCost(raw any) (*decimal.Decimal, error) {
	var value decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int64:
		value = decimal.NewFromInt(v)
	case float64:
		value = decimal.NewFromFloat(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		parsed, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("lastPurchaseUnitCost: %w", err)
		}
		value = parsed
	default:
		return nil, fmt.Errorf("lastPurchaseUnitCost: unsupported type %T", raw)
	}
	return &value, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
