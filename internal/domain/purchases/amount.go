package purchases

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies without a minor unit (Stripe's zero-decimal list).
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

var hundred = decimal.NewFromInt(100)

// MinorUnitExponent returns how many decimal places the currency's minor unit has.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

// ComputeAmount applies the discount to the price and rounds half-up to the
// currency's minor unit.
func ComputeAmount(price decimal.Decimal, discountPercent int, currency string) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("price must not be negative, got %s", price)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return decimal.Zero, fmt.Errorf("discount must be within 0..100, got %d", discountPercent)
	}

	factor := hundred.Sub(decimal.NewFromInt(int64(discountPercent))).Div(hundred)
	// decimal.Round rounds half away from zero, which is half-up for non-negative amounts.
	return price.Mul(factor).Round(MinorUnitExponent(currency)), nil
}

// ToMinorUnits converts a major-unit amount to the integer the providers expect
// (cents for USD, yen for JPY).
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := MinorUnitExponent(currency)
	return amount.Shift(exp).Round(0).IntPart()
}
