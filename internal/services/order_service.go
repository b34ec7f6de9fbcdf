package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/fieldsales/crm-api/internal/domain"
	"github.com/fieldsales/crm-api/internal/repositories"
)

const (
	orderEventCreated = "order.created"

	maxOrderListPageSize = 200

	defaultEventPublishTimeout = 5 * time.Second
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Composer         OrderComposer
	Orders           repositories.OrderRepository
	Events           OrderEventPublisher
	Clock            func() time.Time
	EventIDGenerator func() string
	// PublishTimeout bounds how long a created order waits on its event. Defaults to 5s.
	PublishTimeout   time.Duration
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	composer   OrderComposer
	orders     repositories.OrderRepository
	events     OrderEventPublisher
	clock      func() time.Time
	newEventID func() string
	publishTTL time.Duration
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Composer == nil {
		return nil, errors.New("order service: composer is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.EventIDGenerator
	if idGen == nil {
		idGen = func() string {
			return uuid.NewString()
		}
	}

	publishTTL := deps.PublishTimeout
	if publishTTL <= 0 {
		publishTTL = defaultEventPublishTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		composer: deps.Composer,
		orders:   deps.Orders,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newEventID: idGen,
		publishTTL: publishTTL,
		logger:     logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	order, err := s.composer.Compose(ctx, cmd.Actor, cmd.Request)
	if err != nil {
		return Order{}, err
	}

	cur, err := domain.ParseCurrency(order.Currency)
	total := order.Total.String()
	if err == nil {
		total = order.Total.StringFixed(cur.Scale)
	}

	// The order is already stored; a cancelled request must not stop the event.
	s.publishEvent(context.WithoutCancel(ctx), OrderEvent{
		ID:               s.newEventID(),
		Type:             orderEventCreated,
		OrderID:          order.ID,
		AccountReference: order.AccountReference,
		Channel:          string(order.Channel),
		Status:           string(order.Status),
		Currency:         order.Currency,
		Total:            total,
		LineCount:        len(order.Lines),
		ActorID:          cmd.Actor.ID,
		OccurredAt:       s.clock(),
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.AccountReference = strings.TrimSpace(filter.AccountReference)
	if filter.Status != "" {
		switch filter.Status {
		case domain.OrderStatusDraft, domain.OrderStatusRegisteredForDistributor:
		default:
			return domain.CursorPage[Order]{}, invalidField("status", "unknown order status %q", filter.Status)
		}
	}
	if filter.Pagination.PageSize < 0 {
		return domain.CursorPage[Order]{}, invalidField("pageSize", "must not be negative")
	}
	if filter.Pagination.PageSize > maxOrderListPageSize {
		filter.Pagination.PageSize = maxOrderListPageSize
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return &PersistenceError{Err: err}
		}
	}
	if errors.Is(err, repositories.ErrInvalidPageToken) {
		return invalidField("pageToken", "is malformed")
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.publishTTL)
	defer cancel()
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}
