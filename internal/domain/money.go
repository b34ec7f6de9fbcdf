package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ErrUnknownCurrency is returned when a currency code is not a recognised ISO 4217 code.
var ErrUnknownCurrency = errors.New("money: unknown currency")

// ErrAmountOutOfRange is returned when an amount does not fit in int64 minor units.
var ErrAmountOutOfRange = errors.New("money: amount out of range")

// Currency couples an ISO 4217 code with the number of minor-unit digits it is settled in.
type Currency struct {
	Code  string
	Scale int32
}

// ParseCurrency normalises and validates an ISO 4217 code.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{Code: unit.String(), Scale: int32(scale)}, nil
}

// Round rounds the amount half-up (away from zero) to the currency's minor unit.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Scale)
}

// ToMinor converts an amount into integer minor units. The amount is rounded first.
func (c Currency) ToMinor(amount decimal.Decimal) (int64, error) {
	shifted := c.Round(amount).Shift(c.Scale)
	minor := shifted.BigInt()
	if !minor.IsInt64() {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountOutOfRange, amount.String(), c.Code)
	}
	return minor.Int64(), nil
}

// FromMinor converts integer minor units back into a decimal amount.
func (c Currency) FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.Scale)
}
