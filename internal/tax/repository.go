package tax

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads tax rules from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRules returns every active rule for the scope. Validity-window and
// filter evaluation happens in the engine so previews can ask about any date.
func (r *Repository) ListRules(ctx context.Context, scope Scope) ([]Rule, error) {
	const query = `
		SELECT id, name, kind, rate, fixed_amount, scope,
		       COALESCE(category_ids, '{}'), COALESCE(doc_type_codes, '{}'),
		       COALESCE(valid_from, '0001-01-01'::timestamptz),
		       COALESCE(valid_to, '9999-12-31'::timestamptz),
		       active
		FROM tax_rules
		WHERE scope = $1 AND active`
	rows, err := r.pool.Query(ctx, query, string(scope))
	if err != nil {
		return nil, fmt.Errorf("tax: list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		var scopeStr, kindStr string
		if err := rows.Scan(
			&rule.ID, &rule.Name, &kindStr, &rule.Rate, &rule.Amount, &scopeStr,
			&rule.CategoryIDs, &rule.DocTypeCodes,
			&rule.ValidFrom, &rule.ValidTo, &rule.Active,
		); err != nil {
			return nil, err
		}
		rule.Scope = Scope(scopeStr)
		rule.Kind = Kind(kindStr)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
