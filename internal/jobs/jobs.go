// Package jobs registers the built-in job definitions with the core
// registry. Import it for its side effects; a jobs file loaded later may
// override any of them.
package jobs

import (
	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Groups of upstream API families.
const (
	GroupPrices    = "prices"
	GroupContent   = "content"
	GroupAnalytics = "analytics"
)

// firstNumber returns the first numeric value among vals.
func firstNumber(vals ...any) (float64, bool) {
	for _, v := range vals {
		if n, ok := core.ParseNumber(v); ok {
			return n, true
		}
	}
	return 0, false
}

// maxNumber collapses a price list to one value. Lists with differing
// entries resolve to the maximum; a scalar passes through.
func maxNumber(v any) float64 {
	list, ok := v.([]any)
	if !ok {
		n, _ := core.ParseNumber(v)
		return n
	}
	var best float64
	for i, item := range list {
		n, ok := core.ParseNumber(item)
		if !ok {
			continue
		}
		if i == 0 || n > best {
			best = n
		}
	}
	return best
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
