package services

import (
	"context"
	"time"

	domain "github.com/fieldsales/crm-api/internal/domain"
	"github.com/fieldsales/crm-api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Actor              = domain.Actor
	SalesChannel       = domain.SalesChannel
	OrderStatus        = domain.OrderStatus
	Order              = domain.Order
	RequestedLine      = domain.RequestedLine
	ResolvedLine       = domain.ResolvedLine
	CatalogEntry       = domain.CatalogEntry
	SystemHealthReport = domain.SystemHealthReport
)

// OrderComposer turns a validated order request into a persisted order aggregate.
type OrderComposer interface {
	Compose(ctx context.Context, actor Actor, req ComposeOrderRequest) (Order, error)
}

// OrderService exposes order creation and read flows to transports.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// CatalogService reads inventory catalog entries.
type CatalogService interface {
	GetEntry(ctx context.Context, reference string) (CatalogEntry, error)
}

// SystemService reports service health and build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	OrderID          string    `json:"orderId"`
	AccountReference string    `json:"accountReference"`
	Channel          string    `json:"channel"`
	Status           string    `json:"status"`
	Currency         string    `json:"currency"`
	Total            string    `json:"total"`
	LineCount        int       `json:"lineCount"`
	ActorID          string    `json:"actorId,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// ComposeOrderRequest is the boundary-validated shape of an order submission.
type ComposeOrderRequest struct {
	AccountReference     string
	AccountDisplayName   string
	Channel              SalesChannel
	DistributorReference *string
	Currency             string
	Lines                []RequestedLine
	Notes                *string
}

// CreateOrderCommand carries an order submission together with the identity of the caller.
type CreateOrderCommand struct {
	Actor   Actor
	Request ComposeOrderRequest
}

type OrderListFilter = repositories.OrderListFilter
