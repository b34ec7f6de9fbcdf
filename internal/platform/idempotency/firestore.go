package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore implements Store on a Firestore collection. Reservation runs in a transaction so
// concurrent requests with the same key observe a single winner. Expired documents are removed by
// a Firestore TTL policy on expires_at.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = normaliseTTL(ttl)

	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.docRef(ctx, key)
		if err != nil {
			return err
		}
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && !existing.Record().expired(now) {
			result, err = evaluate(existing.Record(), fingerprint)
			return err
		}

		record := pendingRecord(key, fingerprint, now, ttl)
		if err := tx.Set(ref, toFirestoreRecord(record)); err != nil {
			return err
		}
		result = Reservation{State: ReservationStateNew, Record: record}
		return nil
	})
	if err != nil {
		return Reservation{}, unwrapMismatch(err)
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = normaliseTTL(ttl)

	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.docRef(ctx, key)
		if err != nil {
			return err
		}
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		record := Record{Key: key, Fingerprint: fingerprint}
		if found {
			record = existing.Record()
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}
		return tx.Set(ref, toFirestoreRecord(completeRecord(record, resp, now, ttl)))
	})
	return unwrapMismatch(err)
}

func (s *FirestoreStore) Release(ctx context.Context, key, fingerprint string) error {
	return unwrapMismatch(s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.docRef(ctx, key)
		if err != nil {
			return err
		}
		existing, found, err := readRecord(tx, ref)
		if err != nil || !found || existing.Fingerprint != fingerprint {
			return err
		}
		return tx.Delete(ref)
	}))
}

func (s *FirestoreStore) docRef(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (firestoreRecord, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(pfirestore.WrapError("idempotency.get", err), &repoErr) && repoErr.IsNotFound() {
			return firestoreRecord{}, false, nil
		}
		return firestoreRecord{}, false, err
	}
	var record firestoreRecord
	if err := snap.DataTo(&record); err != nil {
		return firestoreRecord{}, false, err
	}
	return record, true, nil
}

// RunTransaction wraps errors in a repository error; callers match the mismatch sentinel directly.
func unwrapMismatch(err error) error {
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func toFirestoreRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) Record() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
