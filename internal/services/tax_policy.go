package services

import (
	"github.com/shopspring/decimal"
)

// TaxPolicy computes the order-level tax amount from the resolved lines. The composer rounds the
// result to the currency's minor unit.
type TaxPolicy interface {
	Taxes(lines []ResolvedLine) decimal.Decimal
}

// TaxPolicyFunc adapts a plain function into a TaxPolicy.
type TaxPolicyFunc func(lines []ResolvedLine) decimal.Decimal

// Taxes implements TaxPolicy.
func (f TaxPolicyFunc) Taxes(lines []ResolvedLine) decimal.Decimal { return f(lines) }

// ZeroTaxPolicy charges no tax. It is the default until real tax rules are integrated.
type ZeroTaxPolicy struct{}

// Taxes implements TaxPolicy.
func (ZeroTaxPolicy) Taxes([]ResolvedLine) decimal.Decimal { return decimal.Zero }

// FlatRateTaxPolicy applies a single rate (0.21 for 21%) to the sum of the line totals.
type FlatRateTaxPolicy struct {
	Rate decimal.Decimal
}

// Taxes implements TaxPolicy.
func (p FlatRateTaxPolicy) Taxes(lines []ResolvedLine) decimal.Decimal {
	base := decimal.Zero
	for _, line := range lines {
		base = base.Add(line.LineTotal)
	}
	return base.Mul(p.Rate)
}

// NewTaxPolicy returns the zero policy for a zero rate and a flat-rate policy otherwise.
func NewTaxPolicy(rate decimal.Decimal) TaxPolicy {
	if rate.IsZero() {
		return ZeroTaxPolicy{}
	}
	return FlatRateTaxPolicy{Rate: rate}
}
