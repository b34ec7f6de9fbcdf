package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/fieldsales/crm-api/internal/domain"
	"github.com/fieldsales/crm-api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	default:
		return "repository error"
	}
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = stubRepoError{}

type stubCatalogRepo struct {
	entries map[string]domain.CatalogEntry
	delays  map[string]time.Duration
	errs    map[string]error
	findFn  func(context.Context, string) (domain.CatalogEntry, error)

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu        sync.Mutex
	completed []string
}

func (s *stubCatalogRepo) FindEntry(ctx context.Context, reference string) (domain.CatalogEntry, error) {
	s.calls.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if current <= seen || s.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	if delay := s.delays[reference]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.CatalogEntry{}, ctx.Err()
		}
	}
	defer func() {
		s.mu.Lock()
		s.completed = append(s.completed, reference)
		s.mu.Unlock()
	}()

	if s.findFn != nil {
		return s.findFn(ctx, reference)
	}
	if err := s.errs[reference]; err != nil {
		return domain.CatalogEntry{}, err
	}
	entry, ok := s.entries[reference]
	if !ok {
		return domain.CatalogEntry{}, stubRepoError{notFound: true}
	}
	return entry, nil
}

func (s *stubCatalogRepo) completionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

type stubOrderRepo struct {
	createFn func(context.Context, domain.Order) (string, error)
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)

	created []domain.Order
}

func (s *stubOrderRepo) Create(ctx context.Context, order domain.Order) (string, error) {
	s.created = append(s.created, order)
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return "ord_test", nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type captureLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (l *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.fields = append(l.fields, fields)
}

func (l *captureLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}
