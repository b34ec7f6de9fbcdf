package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in    string
		code  string
		scale int32
	}{
		{in: "eur", code: "EUR", scale: 2},
		{in: " USD ", code: "USD", scale: 2},
		{in: "JPY", code: "JPY", scale: 0},
	}
	for _, tc := range cases {
		got, err := ParseCurrency(tc.in)
		if err != nil {
			t.Fatalf("ParseCurrency(%q): %v", tc.in, err)
		}
		if got.Code != tc.code || got.Scale != tc.scale {
			t.Fatalf("ParseCurrency(%q) = %+v, want %s/%d", tc.in, got, tc.code, tc.scale)
		}
	}

	for _, bad := range []string{"", "EU", "EURO", "ZZZ"} {
		if _, err := ParseCurrency(bad); !errors.Is(err, ErrUnknownCurrency) {
			t.Fatalf("ParseCurrency(%q) expected ErrUnknownCurrency, got %v", bad, err)
		}
	}
}

func TestCurrencyRoundHalfUp(t *testing.T) {
	eur := Currency{Code: "EUR", Scale: 2}
	cases := map[string]string{
		"2.345":  "2.35",
		"2.344":  "2.34",
		"0.005":  "0.01",
		"7.5":    "7.5",
		"10.125": "10.13",
	}
	for in, want := range cases {
		got := eur.Round(decimal.RequireFromString(in))
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("Round(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestCurrencyMinorUnits(t *testing.T) {
	eur := Currency{Code: "EUR", Scale: 2}
	cases := []struct {
		cur  Currency
		in   string
		want int64
	}{
		{eur, "7.50", 750},
		{eur, "0.015", 2},
		{Currency{Code: "JPY", Scale: 0}, "1280", 1280},
	}
	for _, tc := range cases {
		got, err := tc.cur.ToMinor(decimal.RequireFromString(tc.in))
		if err != nil {
			t.Fatalf("ToMinor(%s) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ToMinor(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := eur.FromMinor(1234); !got.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("FromMinor(1234) = %s", got)
	}
}

func TestCurrencyMinorUnitsOutOfRange(t *testing.T) {
	eur := Currency{Code: "EUR", Scale: 2}
	for _, in := range []string{"250000000000000000000", "-250000000000000000000", "92233720368547758.08"} {
		if _, err := eur.ToMinor(decimal.RequireFromString(in)); !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("ToMinor(%s) error = %v, want ErrAmountOutOfRange", in, err)
		}
	}
	got, err := eur.ToMinor(decimal.RequireFromString("92233720368547758.07"))
	if err != nil {
		t.Fatalf("ToMinor at int64 bound: %v", err)
	}
	if got != math.MaxInt64 {
		t.Fatalf("ToMinor at int64 bound = %d", got)
	}
}
