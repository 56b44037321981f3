package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money pairs a decimal amount with an ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney validates the currency code and builds a Money value.
func NewMoney(amount decimal.Decimal, code string) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, &ValidationError{Field: "currency", Msg: fmt.Sprintf("unknown currency code %q", code)}
	}
	return Money{Amount: amount, Currency: unit.String()}, nil
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Quantize4 truncates monetary intermediates to four decimal places,
// half away from zero, matching price-chain precision.
func Quantize4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}
