package repositories

import (
	"context"
	"errors"

	domain "github.com/fieldsales/crm-api/internal/domain"
)

// ErrInvalidPageToken is returned by list operations when the page token cannot be decoded.
var ErrInvalidPageToken = errors.New("repositories: invalid page token")

// RepositoryError exposes storage failure categories so services can map them without knowing
// the backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads inventory catalog entries. Entries are written by the inventory system;
// this API only reads them. Implementations must be safe for concurrent use.
type CatalogRepository interface {
	FindEntry(ctx context.Context, reference string) (domain.CatalogEntry, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	AccountReference string
	Status           domain.OrderStatus
	Pagination       domain.Pagination
}

// OrderRepository persists composed orders. Create assigns and returns the order identifier.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (string, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// HealthRepository runs dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
