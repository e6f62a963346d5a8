package cost

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/modelwatch/internal/dataset"
)

func record(t *testing.T) *dataset.ModelRecord {
	t.Helper()
	input, err := dataset.PriceFromString("1.0")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	output, err := dataset.PriceFromString("3.0")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	return &dataset.ModelRecord{
		ModelID: "amazon-nova",
		Pricing: map[string]dataset.Price{"input": input, "output": output},
	}
}

func TestEstimate(t *testing.T) {
	rec := record(t)

	got := Estimate(rec, map[string]int64{"input": 2500})
	if want := decimal.RequireFromString("2.5"); !got.Equal(want) {
		t.Errorf("Estimate = %s, want %s", got, want)
	}

	got = Estimate(rec, map[string]int64{"input": 2500, "output": 1000})
	if want := decimal.RequireFromString("5.5"); !got.Equal(want) {
		t.Errorf("Estimate = %s, want %s", got, want)
	}
}

func TestEstimateIsLinear(t *testing.T) {
	rec := record(t)
	one := Estimate(rec, map[string]int64{"input": 1000})
	ten := Estimate(rec, map[string]int64{"input": 10000})
	if !ten.Equal(one.Mul(decimal.NewFromInt(10))) {
		t.Errorf("10x tokens should cost 10x: %s vs %s", ten, one)
	}
}

func TestEstimateUnpricedClassIsZero(t *testing.T) {
	rec := record(t)
	got := Estimate(rec, map[string]int64{"cache_read": 50000})
	if !got.IsZero() {
		t.Errorf("unpriced class should cost zero, got %s", got)
	}
}

func TestEstimateZeroUsage(t *testing.T) {
	rec := record(t)
	if got := Estimate(rec, nil); !got.IsZero() {
		t.Errorf("empty usage should cost zero, got %s", got)
	}
	if got := Estimate(rec, map[string]int64{"input": 0}); !got.IsZero() {
		t.Errorf("zero tokens should cost zero, got %s", got)
	}
}

func TestBreakdownMarksUnpricedClasses(t *testing.T) {
	rec := record(t)
	lines := Breakdown(rec, map[string]int64{"input": 1000, "cache_read": 500})
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	// Sorted by class: cache_read first.
	if lines[0].Class != "cache_read" || lines[0].Priced {
		t.Errorf("cache_read line = %+v, want unpriced", lines[0])
	}
	if lines[1].Class != "input" || !lines[1].Priced {
		t.Errorf("input line = %+v, want priced", lines[1])
	}
	if want := decimal.NewFromInt(1); !lines[1].Cost.Equal(want) {
		t.Errorf("input cost = %s, want %s", lines[1].Cost, want)
	}
}
