package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/fieldsales/crm-api/internal/domain"
	"github.com/fieldsales/crm-api/internal/platform/httpx"
	"github.com/fieldsales/crm-api/internal/platform/requestctx"
	"github.com/fieldsales/crm-api/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCreateBodySize = 64 * 1024
)

// OrderHandlers exposes order submission and read endpoints.
type OrderHandlers struct {
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises order handler behaviour.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order submission with the given idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

type createOrderRequest struct {
	AccountReference     string                `json:"accountReference"`
	AccountDisplayName   string                `json:"accountDisplayName"`
	Channel              string                `json:"channel"`
	DistributorReference *string               `json:"distributorReference"`
	Currency             string                `json:"currency"`
	Lines                []createOrderLineJSON `json:"lines"`
	Notes                *string               `json:"notes"`
}

type createOrderLineJSON struct {
	InventoryReference string           `json:"inventoryReference"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPriceOverride  *decimal.Decimal `json:"unitPriceOverride"`
}

type createOrderResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := requestctx.Actor(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "caller identity is required", http.StatusUnauthorized))
		return
	}

	req, err := decodeCreateOrderRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(services.ErrorKindValidation, err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"field": "body"}))
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:   actor,
		Request: req.toCompose(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{OK: true, ID: order.ID})
}

func decodeCreateOrderRequest(r *http.Request) (createOrderRequest, error) {
	var req createOrderRequest
	if r.Body == nil {
		return req, errors.New("request body required")
	}
	defer r.Body.Close()

	limited := io.LimitReader(r.Body, maxOrderCreateBodySize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return req, fmt.Errorf("read request body: %w", err)
	}
	if len(data) > maxOrderCreateBodySize {
		return req, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, errors.New("request body required")
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if decoder.More() {
		return req, errors.New("invalid request body: unexpected trailing data")
	}
	return req, nil
}

func (req createOrderRequest) toCompose() services.ComposeOrderRequest {
	lines := make([]services.RequestedLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.RequestedLine{
			InventoryReference: line.InventoryReference,
			Quantity:           line.Quantity,
			UnitPriceOverride:  line.UnitPriceOverride,
		})
	}
	return services.ComposeOrderRequest{
		AccountReference:     req.AccountReference,
		AccountDisplayName:   req.AccountDisplayName,
		Channel:              domain.SalesChannel(req.Channel),
		DistributorReference: req.DistributorReference,
		Currency:             req.Currency,
		Lines:                lines,
		Notes:                req.Notes,
	}
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(services.ErrorKindValidation, "page_size must be an integer", http.StatusBadRequest).
				WithDetails(map[string]any{"field": "page_size"}))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		AccountReference: strings.TrimSpace(query.Get("account")),
		Status:           domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

type orderPayload struct {
	ID                   string             `json:"id"`
	AccountReference     string             `json:"accountReference"`
	AccountDisplayName   string             `json:"accountDisplayName"`
	Channel              string             `json:"channel"`
	DistributorReference *string            `json:"distributorReference"`
	Currency             string             `json:"currency"`
	Lines                []orderLinePayload `json:"lines"`
	Subtotal             string             `json:"subtotal"`
	Taxes                string             `json:"taxes"`
	Total                string             `json:"total"`
	Status               string             `json:"status"`
	Notes                *string            `json:"notes"`
	CreatedBy            string             `json:"createdBy,omitempty"`
	CreatedAt            string             `json:"createdAt"`
	UpdatedAt            string             `json:"updatedAt"`
}

type orderLinePayload struct {
	InventoryReference string  `json:"inventoryReference"`
	Quantity           string  `json:"quantity"`
	UnitPriceOverride  *string `json:"unitPriceOverride,omitempty"`
	SKU                string  `json:"sku"`
	DisplayName        string  `json:"displayName"`
	UnitOfMeasure      string  `json:"unitOfMeasure"`
	CategoryReference  string  `json:"categoryReference"`
	LineType           string  `json:"lineType"`
	UnitPrice          string  `json:"unitPrice"`
	LineTotal          string  `json:"lineTotal"`
}

func buildOrderPayload(order services.Order) orderPayload {
	scale := currencyScale(order.Currency)
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		payload := orderLinePayload{
			InventoryReference: line.InventoryReference,
			Quantity:           line.Quantity.String(),
			SKU:                line.SKU,
			DisplayName:        line.DisplayName,
			UnitOfMeasure:      line.UnitOfMeasure,
			CategoryReference:  line.CategoryReference,
			LineType:           line.LineType,
			UnitPrice:          line.UnitPrice.StringFixed(scale),
			LineTotal:          line.LineTotal.StringFixed(scale),
		}
		if line.UnitPriceOverride != nil {
			override := line.UnitPriceOverride.String()
			payload.UnitPriceOverride = &override
		}
		lines = append(lines, payload)
	}

	return orderPayload{
		ID:                   order.ID,
		AccountReference:     order.AccountReference,
		AccountDisplayName:   order.AccountDisplayName,
		Channel:              string(order.Channel),
		DistributorReference: order.DistributorReference,
		Currency:             order.Currency,
		Lines:                lines,
		Subtotal:             order.Subtotal.StringFixed(scale),
		Taxes:                order.Taxes.StringFixed(scale),
		Total:                order.Total.StringFixed(scale),
		Status:               string(order.Status),
		Notes:                order.Notes,
		CreatedBy:            order.CreatedBy,
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
	}
}

func currencyScale(code string) int32 {
	cur, err := domain.ParseCurrency(code)
	if err != nil {
		return 2
	}
	return cur.Scale
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// writeOrderError maps service errors onto the public error taxonomy. Messages never carry
// wrapped backend errors.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	kind := services.ErrorKind(err)
	switch kind {
	case services.ErrorKindValidation:
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			httpx.WriteError(ctx, w, httpx.NewError(kind, validation.Field+" "+validation.Message, http.StatusBadRequest).
				WithDetails(map[string]any{"field": validation.Field}))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError(kind, "invalid request", http.StatusBadRequest))
	case services.ErrorKindUnresolvedReference:
		var unresolved *services.UnresolvedReferenceError
		if errors.As(err, &unresolved) {
			httpx.WriteError(ctx, w, httpx.NewError(kind, fmt.Sprintf("inventory reference %q does not exist", unresolved.Reference), http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"reference": unresolved.Reference, "line": unresolved.Line}))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError(kind, "inventory reference does not exist", http.StatusUnprocessableEntity))
	case services.ErrorKindNotFound:
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case services.ErrorKindPersistence:
		httpx.WriteError(ctx, w, httpx.NewError(kind, "the order could not be saved, retry later", http.StatusServiceUnavailable))
	case services.ErrorKindCatalogUnavailable:
		httpx.WriteError(ctx, w, httpx.NewError(kind, "the inventory catalog is unavailable, retry later", http.StatusServiceUnavailable))
	case services.ErrorKindCanceled:
		httpx.WriteError(ctx, w, httpx.NewError(kind, "the request was cancelled before completion", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
