package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/fieldsales/crm-api/internal/domain"
	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
	"github.com/fieldsales/crm-api/internal/repositories"
)

const (
	ordersCollection = "orders"
	orderIDPrefix    = "ord_"

	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
	maxCreateAttempts    = 3
)

// OrderRepositoryOption customises the Firestore order repository.
type OrderRepositoryOption func(*OrderRepository)

// WithOrderIDGenerator overrides the identifier generator, primarily for tests.
func WithOrderIDGenerator(gen func() string) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// OrderRepository persists composed orders in the orders collection.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
	newID  func() string
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	repo := &OrderRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		newID: func() string {
			return orderIDPrefix + ulid.Make().String()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Create writes the order under a freshly generated identifier. The write is a create, never an
// upsert; an identifier collision is retried with a new identifier.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (string, error) {
	if r == nil || r.orders == nil {
		return "", errors.New("order repository not initialised")
	}
	doc, err := encodeOrderDocument(order)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := r.newID()
		_, err := r.orders.Create(ctx, id, doc)
		if err == nil {
			return id, nil
		}
		lastErr = err
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			return "", err
		}
	}
	return "", lastErr
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data)
}

// List returns orders newest first, optionally narrowed by account and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := normalizeOrderPageSize(filter.Pagination.PageSize)
	fetchLimit := limit + 1

	var (
		cursorSet  bool
		cursorTime time.Time
		cursorID   string
	)
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		ts, id, err := decodeOrderToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w: %v", repositories.ErrInvalidPageToken, err)
		}
		cursorSet, cursorTime, cursorID = true, ts, id
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if account := strings.TrimSpace(filter.AccountReference); account != "" {
			q = q.Where("accountReference", "==", account)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursorSet {
			q = q.StartAfter(cursorTime, cursorID)
		}
		return q.Limit(fetchLimit)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if len(docs) == fetchLimit {
		last := docs[limit-1]
		nextToken = encodeOrderToken(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrderDocument(doc.ID, doc.Data)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

func normalizeOrderPageSize(size int) int {
	switch {
	case size <= 0:
		return defaultOrderPageSize
	case size > maxOrderPageSize:
		return maxOrderPageSize
	default:
		return size
	}
}

// Money is stored as integer minor units of the order currency. Quantities and caller overrides
// keep their full precision as decimal strings.
type orderDocument struct {
	AccountReference     string              `firestore:"accountReference"`
	AccountDisplayName   string              `firestore:"accountDisplayName"`
	Channel              string              `firestore:"channel"`
	DistributorReference *string             `firestore:"distributorReference"`
	Currency             string              `firestore:"currency"`
	Lines                []orderLineDocument `firestore:"lines"`
	Subtotal             int64               `firestore:"subtotal"`
	Taxes                int64               `firestore:"taxes"`
	Total                int64               `firestore:"total"`
	Status               string              `firestore:"status"`
	Notes                *string             `firestore:"notes"`
	CreatedBy            string              `firestore:"createdBy"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

type orderLineDocument struct {
	InventoryReference string  `firestore:"inventoryReference"`
	Quantity           string  `firestore:"quantity"`
	UnitPriceOverride  *string `firestore:"unitPriceOverride"`
	SKU                string  `firestore:"sku"`
	DisplayName        string  `firestore:"displayName"`
	UnitOfMeasure      string  `firestore:"unitOfMeasure"`
	CategoryReference  string  `firestore:"categoryReference"`
	LineType           string  `firestore:"lineType"`
	UnitPrice          int64   `firestore:"unitPrice"`
	LineTotal          int64   `firestore:"lineTotal"`
}

func encodeOrderDocument(order domain.Order) (orderDocument, error) {
	cur, err := domain.ParseCurrency(order.Currency)
	if err != nil {
		return orderDocument{}, fmt.Errorf("encode order: %w", err)
	}

	var convErr error
	minor := func(amount decimal.Decimal) int64 {
		if convErr != nil {
			return 0
		}
		value, err := cur.ToMinor(amount)
		if err != nil {
			convErr = err
		}
		return value
	}

	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		doc := orderLineDocument{
			InventoryReference: line.InventoryReference,
			Quantity:           line.Quantity.String(),
			SKU:                line.SKU,
			DisplayName:        line.DisplayName,
			UnitOfMeasure:      line.UnitOfMeasure,
			CategoryReference:  line.CategoryReference,
			LineType:           line.LineType,
			UnitPrice:          minor(line.UnitPrice),
			LineTotal:          minor(line.LineTotal),
		}
		if line.UnitPriceOverride != nil {
			override := line.UnitPriceOverride.String()
			doc.UnitPriceOverride = &override
		}
		lines = append(lines, doc)
	}

	doc := orderDocument{
		AccountReference:     order.AccountReference,
		AccountDisplayName:   order.AccountDisplayName,
		Channel:              string(order.Channel),
		DistributorReference: order.DistributorReference,
		Currency:             cur.Code,
		Lines:                lines,
		Subtotal:             minor(order.Subtotal),
		Taxes:                minor(order.Taxes),
		Total:                minor(order.Total),
		Status:               string(order.Status),
		Notes:                order.Notes,
		CreatedBy:            order.CreatedBy,
		CreatedAt:            order.CreatedAt.UTC(),
		UpdatedAt:            order.UpdatedAt.UTC(),
	}
	if convErr != nil {
		return orderDocument{}, fmt.Errorf("encode order: %w", convErr)
	}
	return doc, nil
}

func decodeOrderDocument(id string, doc orderDocument) (domain.Order, error) {
	cur, err := domain.ParseCurrency(doc.Currency)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}

	lines := make([]domain.ResolvedLine, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		qty, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: line %d quantity: %w", id, i, err)
		}
		resolved := domain.ResolvedLine{
			InventoryReference: line.InventoryReference,
			Quantity:           qty,
			SKU:                line.SKU,
			DisplayName:        line.DisplayName,
			UnitOfMeasure:      line.UnitOfMeasure,
			CategoryReference:  line.CategoryReference,
			LineType:           line.LineType,
			UnitPrice:          cur.FromMinor(line.UnitPrice),
			LineTotal:          cur.FromMinor(line.LineTotal),
		}
		if line.UnitPriceOverride != nil {
			override, err := decimal.NewFromString(*line.UnitPriceOverride)
			if err != nil {
				return domain.Order{}, fmt.Errorf("decode order %s: line %d override: %w", id, i, err)
			}
			resolved.UnitPriceOverride = &override
		}
		lines = append(lines, resolved)
	}

	return domain.Order{
		ID:                   id,
		AccountReference:     doc.AccountReference,
		AccountDisplayName:   doc.AccountDisplayName,
		Channel:              domain.SalesChannel(doc.Channel),
		DistributorReference: doc.DistributorReference,
		Currency:             cur.Code,
		Lines:                lines,
		Subtotal:             cur.FromMinor(doc.Subtotal),
		Taxes:                cur.FromMinor(doc.Taxes),
		Total:                cur.FromMinor(doc.Total),
		Status:               domain.OrderStatus(doc.Status),
		Notes:                doc.Notes,
		CreatedBy:            doc.CreatedBy,
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}, nil
}

func encodeOrderToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeOrderToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
