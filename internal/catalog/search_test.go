package catalog

import (
	"context"
	"testing"

	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedCache(t *testing.T, products ...order.Product) *Cache {
	t.Helper()
	c := New(staticSource(products...), quietLogger(), nil)
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	return c
}

func names(products []order.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"mixed case", "Coffee Mug Large", "coffee mug large"},
		{"multiple spaces", "TEA  Towel", "tea towel"},
		{"punctuation", "mug,white!", "mug white"},
		{"blank", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize(tt.input))
		})
	}
}

func TestSearch_RanksWholeWordsFirst(t *testing.T) {
	c := loadedCache(t,
		order.Product{ID: 1, Name: "Mugwort Tea"},
		order.Product{ID: 2, Name: "Coffee Mug"},
		order.Product{ID: 3, Name: "Mug"},
		order.Product{ID: 4, Name: "Plate"},
	)

	got := c.Search("mug", 0)
	assert.Equal(t, []string{"Mug", "Coffee Mug", "Mugwort Tea"}, names(got))
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	c := loadedCache(t,
		order.Product{ID: 1, Name: "Red Mug"},
		order.Product{ID: 2, Name: "Blue Mug"},
		order.Product{ID: 3, Name: "Red Plate"},
	)

	assert.Equal(t, []string{"Red Mug"}, names(c.Search("mug red", 0)))
	assert.Empty(t, c.Search("green mug", 0))
}

func TestSearch_BlankQueryAndLimit(t *testing.T) {
	c := loadedCache(t,
		order.Product{ID: 1, Name: "A"},
		order.Product{ID: 2, Name: "B"},
		order.Product{ID: 3, Name: "C"},
	)

	assert.Len(t, c.Search("", 0), 3)
	assert.Equal(t, []string{"A", "B"}, names(c.Search(" ", 2)))
}

func TestSearch_EmptyCatalog(t *testing.T) {
	c := New(staticSource(), quietLogger(), nil)
	assert.Empty(t, c.Search("mug", 10))
}
