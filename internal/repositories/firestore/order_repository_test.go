package firestore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/fieldsales/crm-api/internal/domain"
	pconfig "github.com/fieldsales/crm-api/internal/platform/config"
	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
)

func sampleOrder() domain.Order {
	distributor := "D9"
	override := decimal.RequireFromString("1.999")
	now := time.Date(2024, time.May, 3, 9, 30, 0, 0, time.UTC)
	return domain.Order{
		AccountReference:     "A1",
		AccountDisplayName:   "Bar Pepe",
		Channel:              domain.SalesChannelDistributor,
		DistributorReference: &distributor,
		Currency:             "eur",
		Lines: []domain.ResolvedLine{
			{
				InventoryReference: "SKU-1",
				Quantity:           decimal.RequireFromString("3"),
				SKU:                "SKU-1",
				DisplayName:        "Olive oil 1L",
				UnitOfMeasure:      "bottle",
				CategoryReference:  "oil",
				LineType:           "oil",
				UnitPrice:          decimal.RequireFromString("2.50"),
				LineTotal:          decimal.RequireFromString("7.50"),
			},
			{
				InventoryReference: "SKU-2",
				Quantity:           decimal.RequireFromString("0.5"),
				UnitPriceOverride:  &override,
				SKU:                "SKU-2",
				UnitPrice:          decimal.RequireFromString("2.00"),
				LineTotal:          decimal.RequireFromString("1.00"),
			},
		},
		Subtotal:  decimal.RequireFromString("8.50"),
		Taxes:     decimal.Zero,
		Total:     decimal.RequireFromString("8.50"),
		Status:    domain.OrderStatusRegisteredForDistributor,
		CreatedBy: "rep-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEncodeOrderDocumentStoresMinorUnits(t *testing.T) {
	doc, err := encodeOrderDocument(sampleOrder())
	require.NoError(t, err)

	assert.Equal(t, "EUR", doc.Currency)
	assert.Equal(t, int64(850), doc.Subtotal)
	assert.Equal(t, int64(0), doc.Taxes)
	assert.Equal(t, int64(850), doc.Total)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, int64(250), doc.Lines[0].UnitPrice)
	assert.Equal(t, int64(750), doc.Lines[0].LineTotal)
	assert.Equal(t, "3", doc.Lines[0].Quantity)
	assert.Nil(t, doc.Lines[0].UnitPriceOverride)
	require.NotNil(t, doc.Lines[1].UnitPriceOverride)
	assert.Equal(t, "1.999", *doc.Lines[1].UnitPriceOverride)
	assert.Equal(t, "0.5", doc.Lines[1].Quantity)
	assert.Equal(t, "registered_for_distributor", doc.Status)
}

func TestEncodeOrderDocumentRejectsUnknownCurrency(t *testing.T) {
	order := sampleOrder()
	order.Currency = "ZZZ"
	_, err := encodeOrderDocument(order)
	assert.ErrorIs(t, err, domain.ErrUnknownCurrency)
}

func TestEncodeOrderDocumentRejectsAmountsBeyondMinorUnitRange(t *testing.T) {
	huge := decimal.RequireFromString("250000000000000000000")

	order := sampleOrder()
	order.Subtotal = huge
	order.Total = huge
	_, err := encodeOrderDocument(order)
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	order = sampleOrder()
	order.Lines[0].LineTotal = huge
	_, err = encodeOrderDocument(order)
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
}

func TestOrderRepositoryCreateRejectsOutOfRangeAmountsBeforeWriting(t *testing.T) {
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "crm-test", EmulatorHost: "127.0.0.1:1"})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ids := 0
	repo, err := NewOrderRepository(provider, WithOrderIDGenerator(func() string {
		ids++
		return "ord_unused"
	}))
	require.NoError(t, err)

	order := sampleOrder()
	order.Total = decimal.RequireFromString("250000000000000000000")
	id, err := repo.Create(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	assert.Empty(t, id)
	assert.Zero(t, ids, "no identifier is drawn when encoding fails")
}

func TestOrderDocumentRoundTrip(t *testing.T) {
	original := sampleOrder()
	doc, err := encodeOrderDocument(original)
	require.NoError(t, err)

	decoded, err := decodeOrderDocument("ord_1", doc)
	require.NoError(t, err)

	assert.Equal(t, "ord_1", decoded.ID)
	assert.Equal(t, "EUR", decoded.Currency)
	assert.True(t, decoded.Subtotal.Equal(original.Subtotal))
	assert.True(t, decoded.Total.Equal(original.Total))
	assert.True(t, decoded.Taxes.IsZero())
	require.Len(t, decoded.Lines, 2)
	assert.Equal(t, "SKU-1", decoded.Lines[0].InventoryReference)
	assert.Equal(t, "SKU-2", decoded.Lines[1].InventoryReference)
	assert.True(t, decoded.Lines[1].Quantity.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, decoded.Lines[1].UnitPriceOverride)
	assert.True(t, decoded.Lines[1].UnitPriceOverride.Equal(decimal.RequireFromString("1.999")))
	assert.Equal(t, domain.SalesChannelDistributor, decoded.Channel)
	require.NotNil(t, decoded.DistributorReference)
	assert.Equal(t, "D9", *decoded.DistributorReference)
	assert.True(t, decoded.CreatedAt.Equal(decoded.UpdatedAt))
}

func TestDecodeOrderDocumentRejectsBadQuantity(t *testing.T) {
	doc, err := encodeOrderDocument(sampleOrder())
	require.NoError(t, err)
	doc.Lines[0].Quantity = "three"

	_, err = decodeOrderDocument("ord_1", doc)
	assert.Error(t, err)
}

func TestOrderTokenRoundTrip(t *testing.T) {
	ts := time.Date(2024, time.May, 3, 9, 30, 0, 123456789, time.UTC)
	token := encodeOrderToken(ts, "ord_01HX")

	gotTime, gotID, err := decodeOrderToken(token)
	require.NoError(t, err)
	assert.True(t, gotTime.Equal(ts))
	assert.Equal(t, "ord_01HX", gotID)
}

func TestDecodeOrderTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm8tc2VwYXJhdG9y", "MjAyNHxvcmQ"} {
		_, _, err := decodeOrderToken(token)
		assert.Error(t, err, token)
	}
}

func TestNormalizeOrderPageSize(t *testing.T) {
	assert.Equal(t, defaultOrderPageSize, normalizeOrderPageSize(0))
	assert.Equal(t, defaultOrderPageSize, normalizeOrderPageSize(-4))
	assert.Equal(t, 10, normalizeOrderPageSize(10))
	assert.Equal(t, maxOrderPageSize, normalizeOrderPageSize(maxOrderPageSize+1))
}

func TestDecodeCatalogDocumentUnitCost(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want string
	}{
		{name: "float", raw: 2.5, want: "2.5"},
		{name: "integer", raw: int64(3), want: "3"},
		{name: "string", raw: " 2.50 ", want: "2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, err := decodeCatalogDocument("SKU-1", catalogDocument{SKU: "SKU-1", LastPurchaseUnitCost: tc.raw})
			require.NoError(t, err)
			require.NotNil(t, entry.LastPurchaseUnitCost)
			assert.True(t, entry.LastPurchaseUnitCost.Equal(decimal.RequireFromString(tc.want)))
			assert.Equal(t, "SKU-1", entry.Reference)
		})
	}
}

func TestDecodeCatalogDocumentWithoutUnitCost(t *testing.T) {
	for _, raw := range []any{nil, ""} {
		entry, err := decodeCatalogDocument("SKU-1", catalogDocument{LastPurchaseUnitCost: raw})
		require.NoError(t, err)
		assert.Nil(t, entry.LastPurchaseUnitCost)
	}

	_, err := decodeCatalogDocument("SKU-1", catalogDocument{LastPurchaseUnitCost: "n/a"})
	assert.Error(t, err)
	_, err = decodeCatalogDocument("SKU-1", catalogDocument{LastPurchaseUnitCost: true})
	assert.Error(t, err)
}
