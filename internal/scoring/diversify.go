package scoring

import "strings"

// Diversify reorders a ranked pool so the top of the list spreads across
// brands: a greedy first pass takes the best item of each brand in rank
// order, then remaining slots are backfilled by rank. Duplicate product ids
// are dropped. The result always has min(limit, distinct pool size) items,
// so diversification never costs the caller results.
func Diversify(ranked []ScoredProduct, limit int) []ScoredProduct {
	if limit <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(ranked))
	pool := make([]ScoredProduct, 0, len(ranked))
	for _, sp := range ranked {
		if _, dup := seen[sp.Product.ID]; dup {
			continue
		}
		seen[sp.Product.ID] = struct{}{}
		pool = append(pool, sp)
	}
	if limit > len(pool) {
		limit = len(pool)
	}

	picked := make(map[string]struct{}, limit)
	brands := make(map[string]struct{}, limit)
	out := make([]ScoredProduct, 0, limit)

	for _, sp := range pool {
		brand := strings.ToLower(sp.Product.Brand)
		if _, taken := brands[brand]; taken {
			continue
		}
		brands[brand] = struct{}{}
		picked[sp.Product.ID] = struct{}{}
		out = append(out, sp)
		if len(out) == limit {
			return out
		}
	}

	// Backfill with the best remaining items regardless of brand.
	for _, sp := range pool {
		if _, taken := picked[sp.Product.ID]; taken {
			continue
		}
		picked[sp.Product.ID] = struct{}{}
		out = append(out, sp)
		if len(out) == limit {
			break
		}
	}
	return out
}
