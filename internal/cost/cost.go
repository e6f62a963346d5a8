// Package cost estimates request cost from a model record's pricing.
package cost

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/modelwatch/internal/dataset"
)

var perThousand = decimal.NewFromInt(1000)

// Estimate returns the total USD cost for the given token usage against a
// model's pricing. Prices are per 1K tokens. Usage classes the record does
// not price contribute zero.
func Estimate(rec *dataset.ModelRecord, usage map[string]int64) decimal.Decimal {
	total := decimal.Zero
	for class, tokens := range usage {
		price, ok := rec.Pricing[class]
		if !ok {
			continue
		}
		total = total.Add(classCost(price, tokens))
	}
	return total
}

// Line is one usage class's contribution to an estimate.
type Line struct {
	Class  string
	Tokens int64
	Cost   decimal.Decimal
	Priced bool
}

// Breakdown returns per-class cost lines sorted by class name, including
// unpriced classes so callers can surface them.
func Breakdown(rec *dataset.ModelRecord, usage map[string]int64) []Line {
	lines := make([]Line, 0, len(usage))
	for class, tokens := range usage {
		line := Line{Class: class, Tokens: tokens}
		if price, ok := rec.Pricing[class]; ok {
			line.Cost = classCost(price, tokens)
			line.Priced = true
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Class < lines[j].Class })
	return lines
}

func classCost(price dataset.Price, tokens int64) decimal.Decimal {
	return price.Decimal.Mul(decimal.NewFromInt(tokens)).Div(perThousand)
}
