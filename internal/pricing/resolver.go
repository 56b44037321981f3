package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/masterdata"
	"github.com/austral-erp/austral-erp/internal/shared"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// ListsPort loads price lists and their entries.
type ListsPort interface {
	ListPriceLists(ctx context.Context, counterpartyID int64) ([]PriceList, error)
	ListEntries(ctx context.Context, priceListID, articleID int64) ([]Entry, error)
}

// ArticlePort reads article master data for fallback cost and unit factors.
type ArticlePort interface {
	GetArticle(ctx context.Context, id int64) (masterdata.Article, error)
}

// Resolver selects the applicable price-list entry and computes effective
// per-stock-unit cost.
type Resolver struct {
	lists    ListsPort
	articles ArticlePort
}

// NewResolver builds Resolver.
func NewResolver(lists ListsPort, articles ArticlePort) *Resolver {
	return &Resolver{lists: lists, articles: articles}
}

// EffectiveCost resolves the cost of one stock unit of the article when bought
// from the counterparty in the given quantity on the given date.
//
// Selection order: the primary list's best matching tier; failing that, each
// other valid list ordered by most recently started validity; failing all,
// the article's own base cost.
func (r *Resolver) EffectiveCost(ctx context.Context, counterpartyID, articleID int64, qty decimal.Decimal, asOf time.Time) (Resolution, error) {
	if qty.Sign() <= 0 {
		return Resolution{}, &shared.ValidationError{Field: "quantity", Msg: "must be positive"}
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	article, err := r.articles.GetArticle(ctx, articleID)
	if err != nil {
		return Resolution{}, err
	}

	lists, err := r.lists.ListPriceLists(ctx, counterpartyID)
	if err != nil {
		return Resolution{}, fmt.Errorf("pricing: load lists: %w", err)
	}

	var primary *PriceList
	var secondary []PriceList
	for i := range lists {
		if !lists[i].ValidAt(asOf) {
			continue
		}
		if lists[i].Primary && primary == nil {
			primary = &lists[i]
		} else {
			secondary = append(secondary, lists[i])
		}
	}

	if primary != nil {
		entry, ok, err := r.bestTier(ctx, primary.ID, articleID, qty, asOf)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return r.resolve(entry, article, SourcePrimaryList)
		}
	}

	// Most recently started validity first.
	sort.SliceStable(secondary, func(i, j int) bool {
		return secondary[i].ValidFrom.After(secondary[j].ValidFrom)
	})
	for _, list := range secondary {
		entry, ok, err := r.bestTier(ctx, list.ID, articleID, qty, asOf)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return r.resolve(entry, article, SourceSecondaryList)
		}
	}

	return Resolution{
		UnitCost: article.BaseCost,
		Source:   SourceBaseCost,
	}, nil
}

// bestTier picks the entry with the highest minimum-quantity tier not
// exceeding the requested quantity.
func (r *Resolver) bestTier(ctx context.Context, listID, articleID int64, qty decimal.Decimal, asOf time.Time) (Entry, bool, error) {
	entries, err := r.lists.ListEntries(ctx, listID, articleID)
	if err != nil {
		return Entry{}, false, fmt.Errorf("pricing: load entries: %w", err)
	}
	var best Entry
	found := false
	for _, entry := range entries {
		if !entry.ValidAt(asOf) || entry.ArticleID != articleID {
			continue
		}
		if entry.MinQty.GreaterThan(qty) {
			continue
		}
		if !found || entry.MinQty.GreaterThan(best.MinQty) {
			best = entry
			found = true
		}
	}
	return best, found, nil
}

func (r *Resolver) resolve(entry Entry, article masterdata.Article, source CostSource) (Resolution, error) {
	cost := EffectiveUnitCost(entry)
	cost = convertToStockUnit(cost, article.PurchaseUnitFactor)
	return Resolution{
		UnitCost: cost,
		Currency: entry.Currency,
		Source:   source,
		EntryID:  entry.ID,
	}, nil
}

// EffectiveUnitCost applies the cascading discount chain to the list price:
// bonus as (1 − bonus/100), then each additional and each financial discount
// as (1 + d/100), in order, each stage feeding the next. The result is
// quantized to four decimals before unit conversion.
func EffectiveUnitCost(entry Entry) decimal.Decimal {
	cost := entry.UnitPrice.Mul(one.Sub(entry.Bonus.Div(hundred)))
	for _, d := range entry.AdditionalDiscounts {
		cost = cost.Mul(one.Add(d.Div(hundred)))
	}
	for _, d := range entry.FinancialDiscounts {
		cost = cost.Mul(one.Add(d.Div(hundred)))
	}
	return shared.Quantize4(cost)
}

// convertToStockUnit divides by the purchase→stock conversion factor.
// A factor of zero or below means no conversion.
func convertToStockUnit(cost, factor decimal.Decimal) decimal.Decimal {
	if factor.Sign() <= 0 {
		return cost
	}
	return cost.DivRound(factor, 4)
}
