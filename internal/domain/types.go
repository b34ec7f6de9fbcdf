package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// SalesChannel identifies the pathway an order is sold through.
type SalesChannel string

const (
	// SalesChannelDirect sells straight to the account.
	SalesChannelDirect SalesChannel = "direct"
	// SalesChannelDistributor routes the order through a distributor intermediary.
	SalesChannelDistributor SalesChannel = "distributor"
)

// Valid reports whether the channel is one of the supported sales channels.
func (c SalesChannel) Valid() bool {
	switch c {
	case SalesChannelDirect, SalesChannelDistributor:
		return true
	default:
		return false
	}
}

// OrderStatus enumerates the lifecycle states an order can be in.
type OrderStatus string

const (
	// OrderStatusDraft is the initial state of direct orders.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusRegisteredForDistributor is the initial state of orders handed to a distributor.
	OrderStatusRegisteredForDistributor OrderStatus = "registered_for_distributor"
)

// Actor identifies the caller on whose behalf an operation runs.
type Actor struct {
	ID          string
	DisplayName string
}

// CatalogEntry describes a stockable item in the inventory catalog. Entries are owned by the
// inventory collaborator and only ever read by order composition.
type CatalogEntry struct {
	Reference            string
	SKU                  string
	DisplayName          string
	UnitOfMeasure        string
	CategoryReference    string
	LastPurchaseUnitCost *decimal.Decimal
	UpdatedAt            time.Time
}

// RequestedLine is a single order line as submitted by the caller.
type RequestedLine struct {
	InventoryReference string
	Quantity           decimal.Decimal
	UnitPriceOverride  *decimal.Decimal
}

// ResolvedLine is an order line enriched with a point-in-time snapshot of the catalog entry
// and its computed pricing.
type ResolvedLine struct {
	InventoryReference string
	Quantity           decimal.Decimal
	UnitPriceOverride  *decimal.Decimal

	SKU               string
	DisplayName       string
	UnitOfMeasure     string
	CategoryReference string
	LineType          string

	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Order is the persisted aggregate produced by order composition.
type Order struct {
	ID                   string
	AccountReference     string
	AccountDisplayName   string
	Channel              SalesChannel
	DistributorReference *string
	Currency             string
	Lines                []ResolvedLine
	Subtotal             decimal.Decimal
	Taxes                decimal.Decimal
	Total                decimal.Decimal
	Status               OrderStatus
	Notes                *string
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
