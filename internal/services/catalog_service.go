package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldsales/crm-api/internal/repositories"
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	catalog repositories.CatalogRepository
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a read-only catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{catalog: deps.Catalog}, nil
}

func (s *catalogService) GetEntry(ctx context.Context, reference string) (CatalogEntry, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return CatalogEntry{}, invalidField("reference", "is required")
	}

	entry, err := s.catalog.FindEntry(ctx, reference)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return CatalogEntry{}, fmt.Errorf("%w: %s", ErrCatalogEntryNotFound, reference)
			case repoErr.IsUnavailable():
				return CatalogEntry{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
			}
		}
		return CatalogEntry{}, err
	}
	return entry, nil
}
