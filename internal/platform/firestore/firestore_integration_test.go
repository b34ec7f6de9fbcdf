//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	pconfig "github.com/fieldsales/crm-api/internal/platform/config"
	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

// Run with FIRESTORE_EMULATOR_HOST pointing at a local emulator, e.g.
// gcloud beta emulators firestore start --host-port=127.0.0.1:8081
func TestProviderAndRepositoryIntegration(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "crm-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	collection := "samples_" + ulid.Make().String()
	repo := pfirestore.NewBaseRepository[sampleEntity](provider, collection, nil, nil)

	if _, err := repo.Create(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.Create(ctx, "sample-1", sampleEntity{Name: "again"})
	var repoErr *pfirestore.Error
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	doc, err := repo.Get(ctx, "sample-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data.Name != "alpha" || doc.Data.Count != 1 || doc.CreateTime.IsZero() {
		t.Fatalf("unexpected document: %#v", doc)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "sample-1")
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "count", Value: firestore.Increment(2)}})
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("count", "==", 3)
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "sample-1" {
		t.Fatalf("unexpected query result: %#v", docs)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
