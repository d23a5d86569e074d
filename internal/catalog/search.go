package catalog

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kiwari-pos/orderdesk/internal/order"
)

const (
	exactWeight  = 5
	prefixWeight = 1
)

// Search ranks snapshot products against a free-text query for the product
// picker. Every query word must start some word of the product name. Whole
// word hits outrank prefix hits; ties keep catalog order. A blank query
// returns the full catalog. limit <= 0 means no limit.
func (c *Cache) Search(query string, limit int) []order.Product {
	products := c.Snapshot().Products()
	terms := tokenize(normalize(query))
	if len(terms) == 0 {
		return clip(products, limit)
	}

	type scored struct {
		product order.Product
		score   int
		pos     int
	}
	var hits []scored

	for i, p := range products {
		words := tokenize(normalize(p.Name))
		score, ok := scoreName(terms, words)
		if !ok {
			continue
		}
		hits = append(hits, scored{product: p, score: score, pos: i})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].pos < hits[b].pos
	})

	out := make([]order.Product, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.product)
	}
	return clip(out, limit)
}

// scoreName reports false when any term matches no word.
func scoreName(terms, words []string) (int, bool) {
	score := 0
	for _, term := range terms {
		best := 0
		for _, w := range words {
			switch {
			case w == term:
				best = exactWeight
			case best < prefixWeight && strings.HasPrefix(w, term):
				best = prefixWeight
			}
			if best == exactWeight {
				break
			}
		}
		if best == 0 {
			return 0, false
		}
		score += best
	}
	if len(terms) == len(words) && score == exactWeight*len(terms) {
		score += exactWeight
	}
	return score, true
}

// normalize lowercases s and turns every non-alphanumeric rune into a single space.
func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func tokenize(s string) []string {
	return strings.Fields(s)
}

func clip(products []order.Product, limit int) []order.Product {
	if limit > 0 && len(products) > limit {
		return products[:limit]
	}
	return products
}
