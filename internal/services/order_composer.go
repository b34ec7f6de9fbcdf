package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/fieldsales/crm-api/internal/domain"
	"github.com/fieldsales/crm-api/internal/repositories"
)

const (
	defaultOrderCurrency     = "EUR"
	defaultLookupConcurrency = 8
)

// ComposerConfig carries the construction-time settings of the order composer.
type ComposerConfig struct {
	DefaultCurrency   string
	TaxPolicy         TaxPolicy
	LookupConcurrency int
}

// OrderComposerDeps bundles collaborators required to construct the order composer.
type OrderComposerDeps struct {
	Catalog repositories.CatalogRepository
	Orders  repositories.OrderRepository
	Config  ComposerConfig
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type orderComposer struct {
	catalog         repositories.CatalogRepository
	orders          repositories.OrderRepository
	defaultCurrency string
	tax             TaxPolicy
	concurrency     int
	clock           func() time.Time
	logger          func(context.Context, string, map[string]any)
}

var _ OrderComposer = (*orderComposer)(nil)

// NewOrderComposer wires the catalog reader and order store into an OrderComposer.
func NewOrderComposer(deps OrderComposerDeps) (OrderComposer, error) {
	if deps.Catalog == nil {
		return nil, errors.New("order composer: catalog repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order composer: order repository is required")
	}

	currency := strings.TrimSpace(deps.Config.DefaultCurrency)
	if currency == "" {
		currency = defaultOrderCurrency
	}
	parsed, err := domain.ParseCurrency(currency)
	if err != nil {
		return nil, fmt.Errorf("order composer: default currency: %w", err)
	}

	tax := deps.Config.TaxPolicy
	if tax == nil {
		tax = ZeroTaxPolicy{}
	}

	concurrency := deps.Config.LookupConcurrency
	if concurrency <= 0 {
		concurrency = defaultLookupConcurrency
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderComposer{
		catalog:         deps.Catalog,
		orders:          deps.Orders,
		defaultCurrency: parsed.Code,
		tax:             tax,
		concurrency:     concurrency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Compose validates the request, resolves every line against the catalog, prices the order and
// hands it to the order store exactly once. Nothing is written unless every line resolves.
func (c *orderComposer) Compose(ctx context.Context, actor Actor, req ComposeOrderRequest) (Order, error) {
	cur, err := c.validate(actor, &req)
	if err != nil {
		return Order{}, err
	}

	entries, err := c.resolveEntries(ctx, req.Lines)
	if err != nil {
		return Order{}, err
	}

	lines := make([]ResolvedLine, len(req.Lines))
	subtotal := decimal.Zero
	for i, requested := range req.Lines {
		lines[i] = resolveLine(cur, requested, entries[i])
		subtotal = subtotal.Add(lines[i].LineTotal)
	}
	taxes := cur.Round(c.tax.Taxes(lines))

	now := c.clock()
	order := Order{
		AccountReference:     req.AccountReference,
		AccountDisplayName:   req.AccountDisplayName,
		Channel:              req.Channel,
		DistributorReference: req.DistributorReference,
		Currency:             cur.Code,
		Lines:                lines,
		Subtotal:             subtotal,
		Taxes:                taxes,
		Total:                subtotal.Add(taxes),
		Status:               statusForChannel(req.Channel),
		Notes:                req.Notes,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := ctx.Err(); err != nil {
		return Order{}, err
	}

	id, err := c.orders.Create(ctx, order)
	if err != nil {
		c.logger(ctx, "order.compose.persist.failed", map[string]any{
			"account": order.AccountReference,
			"lines":   len(order.Lines),
			"error":   err.Error(),
		})
		return Order{}, &PersistenceError{Err: err}
	}
	order.ID = id

	c.logger(ctx, "order.composed", map[string]any{
		"order":    order.ID,
		"account":  order.AccountReference,
		"channel":  string(order.Channel),
		"status":   string(order.Status),
		"lines":    len(order.Lines),
		"currency": order.Currency,
		"total":    order.Total.StringFixed(cur.Scale),
	})
	return order, nil
}

// validate normalises the request in place and reports the first structural violation in field
// order. It performs no I/O.
func (c *orderComposer) validate(actor Actor, req *ComposeOrderRequest) (domain.Currency, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.Currency{}, invalidField("actor", "caller identity is required")
	}

	req.AccountReference = strings.TrimSpace(req.AccountReference)
	if req.AccountReference == "" {
		return domain.Currency{}, invalidField("accountReference", "is required")
	}
	req.AccountDisplayName = strings.TrimSpace(req.AccountDisplayName)
	if req.AccountDisplayName == "" {
		return domain.Currency{}, invalidField("accountDisplayName", "is required")
	}

	req.Channel = SalesChannel(strings.ToLower(strings.TrimSpace(string(req.Channel))))
	if !req.Channel.Valid() {
		return domain.Currency{}, invalidField("channel", "must be one of %q or %q", domain.SalesChannelDirect, domain.SalesChannelDistributor)
	}

	req.DistributorReference = trimmedOrNil(req.DistributorReference)
	switch {
	case req.Channel == domain.SalesChannelDistributor && req.DistributorReference == nil:
		return domain.Currency{}, invalidField("distributorReference", "is required for distributor orders")
	case req.Channel == domain.SalesChannelDirect && req.DistributorReference != nil:
		return domain.Currency{}, invalidField("distributorReference", "must be empty for direct orders")
	}

	code := strings.TrimSpace(req.Currency)
	if code == "" {
		code = c.defaultCurrency
	}
	cur, err := domain.ParseCurrency(code)
	if err != nil {
		return domain.Currency{}, invalidField("currency", "%q is not a known ISO 4217 code", code)
	}
	req.Currency = cur.Code

	if len(req.Lines) == 0 {
		return domain.Currency{}, invalidField("lines", "at least one line is required")
	}
	req.Lines = append([]RequestedLine(nil), req.Lines...)
	for i := range req.Lines {
		line := &req.Lines[i]
		line.InventoryReference = strings.TrimSpace(line.InventoryReference)
		if line.InventoryReference == "" {
			return domain.Currency{}, invalidField(fmt.Sprintf("lines[%d].inventoryReference", i), "is required")
		}
		if !line.Quantity.IsPositive() {
			return domain.Currency{}, invalidField(fmt.Sprintf("lines[%d].quantity", i), "must be greater than zero")
		}
		if line.UnitPriceOverride != nil && line.UnitPriceOverride.IsNegative() {
			return domain.Currency{}, invalidField(fmt.Sprintf("lines[%d].unitPriceOverride", i), "must not be negative")
		}
	}

	req.Notes = trimmedOrNil(req.Notes)
	return cur, nil
}

// resolveEntries looks up every line concurrently and returns the entries in request order. All
// lookups settle before a missing reference is reported, so the reported line is the first missing
// one by request order regardless of completion order.
func (c *orderComposer) resolveEntries(ctx context.Context, lines []RequestedLine) ([]CatalogEntry, error) {
	entries := make([]CatalogEntry, len(lines))
	missing := make([]bool, len(lines))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, line := range lines {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			entry, err := c.catalog.FindEntry(groupCtx, line.InventoryReference)
			if err != nil {
				if isRepositoryNotFound(err) {
					missing[i] = true
					return nil
				}
				return err
			}
			entries[i] = entry
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, line := range lines {
		if missing[i] {
			return nil, &UnresolvedReferenceError{Reference: line.InventoryReference, Line: i}
		}
	}
	return entries, nil
}

func resolveLine(cur domain.Currency, requested RequestedLine, entry CatalogEntry) ResolvedLine {
	unitPrice := cur.Round(resolveUnitPrice(requested, entry))
	return ResolvedLine{
		InventoryReference: requested.InventoryReference,
		Quantity:           requested.Quantity,
		UnitPriceOverride:  cloneDecimal(requested.UnitPriceOverride),
		SKU:                entry.SKU,
		DisplayName:        entry.DisplayName,
		UnitOfMeasure:      entry.UnitOfMeasure,
		CategoryReference:  entry.CategoryReference,
		LineType:           lineTypeOf(entry),
		UnitPrice:          unitPrice,
		LineTotal:          cur.Round(unitPrice.Mul(requested.Quantity)),
	}
}

// resolveUnitPrice picks the caller override, then the catalog's last purchase cost, then zero.
func resolveUnitPrice(requested RequestedLine, entry CatalogEntry) decimal.Decimal {
	switch {
	case requested.UnitPriceOverride != nil:
		return *requested.UnitPriceOverride
	case entry.LastPurchaseUnitCost != nil:
		return *entry.LastPurchaseUnitCost
	default:
		return decimal.Zero
	}
}

// lineTypeOf derives the line type from the catalog entry's category.
func lineTypeOf(entry CatalogEntry) string {
	return entry.CategoryReference
}

// statusForChannel derives the initial order status. The channel is the only input.
func statusForChannel(channel SalesChannel) OrderStatus {
	if channel == domain.SalesChannelDistributor {
		return domain.OrderStatusRegisteredForDistributor
	}
	return domain.OrderStatusDraft
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneDecimal(value *decimal.Decimal) *decimal.Decimal {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
