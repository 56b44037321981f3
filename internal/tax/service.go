package tax

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// RulesPort loads the candidate rule set for a scope.
type RulesPort interface {
	ListRules(ctx context.Context, scope Scope) ([]Rule, error)
}

// Service couples the pure engine with the rule store.
type Service struct {
	repo RulesPort
}

// NewService builds Service.
func NewService(repo RulesPort) *Service {
	return &Service{repo: repo}
}

// Compute loads active rules for the scope and evaluates them against the
// lines as of the given date.
func (s *Service) Compute(ctx context.Context, lines []Line, docTypeCode string, scope Scope, asOf time.Time) (Breakdown, error) {
	if scope != ScopeSale && scope != ScopePurchase {
		return make(Breakdown), nil
	}
	rules, err := s.repo.ListRules(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("tax: load rules: %w", err)
	}
	return Compute(lines, docTypeCode, scope, rules, asOf), nil
}

// PreviewItem is one (article, quantity, price) tuple for a what-if total.
type PreviewItem struct {
	ArticleID  int64
	CategoryID int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// PreviewResult carries the computed totals without persisting anything.
type PreviewResult struct {
	Subtotal  decimal.Decimal
	Breakdown Breakdown
	Total     decimal.Decimal
}

// Preview computes subtotal, tax breakdown and total for a hypothetical
// document. It works from plain tuples so callers can price carts or drafts
// that were never persisted.
func (s *Service) Preview(ctx context.Context, items []PreviewItem, docTypeCode string, scope Scope, asOf time.Time) (PreviewResult, error) {
	lines := make([]Line, 0, len(items))
	subtotal := decimal.Zero
	for _, item := range items {
		line := Line{
			ArticleID:  item.ArticleID,
			CategoryID: item.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(line.Subtotal())
	}
	breakdown, err := s.Compute(ctx, lines, docTypeCode, scope, asOf)
	if err != nil {
		return PreviewResult{}, err
	}
	subtotal = shared.Round2(subtotal)
	return PreviewResult{
		Subtotal:  subtotal,
		Breakdown: breakdown,
		Total:     subtotal.Add(breakdown.Total()),
	}, nil
}
