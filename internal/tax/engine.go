package tax

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Compute evaluates the rule set against the lines and returns the named tax
// breakdown, each amount rounded half-up to two decimals.
//
// Evaluation is deterministic and free of hidden state: identical lines, rules
// and asOf produce identical output. Rules sharing a name within overlapping
// windows are additive, never deduplicated. An unrecognized scope yields an
// empty breakdown rather than an error.
func Compute(lines []Line, docTypeCode string, scope Scope, rules []Rule, asOf time.Time) Breakdown {
	breakdown := make(Breakdown)
	if scope != ScopeSale && scope != ScopePurchase {
		return breakdown
	}
	for _, rule := range rules {
		if rule.Scope != scope || !rule.AppliesAt(asOf) {
			continue
		}
		for _, line := range lines {
			if !rule.Matches(line.CategoryID, docTypeCode) {
				continue
			}
			var amount decimal.Decimal
			switch rule.Kind {
			case KindPercent:
				amount = line.Subtotal().Mul(rule.Rate).Div(hundred)
			case KindFixed:
				amount = rule.Amount
			default:
				continue
			}
			breakdown[rule.Name] = breakdown[rule.Name].Add(amount)
		}
	}
	for name, amount := range breakdown {
		breakdown[name] = shared.Round2(amount)
	}
	return breakdown
}
