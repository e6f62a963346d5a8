package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ModelRecord is the published metadata for one AI model.
// Fields match the persisted YAML schema exactly.
type ModelRecord struct {
	ModelID             string           `yaml:"model_id" json:"modelId"`
	DisplayName         string           `yaml:"display_name" json:"displayName"`
	Version             string           `yaml:"version,omitempty" json:"version,omitempty"`
	ContextWindowTokens int              `yaml:"context_window_tokens" json:"contextWindowTokens"`
	Pricing             map[string]Price `yaml:"pricing" json:"pricing"`
	DocsURL             string           `yaml:"docs_url" json:"docsUrl"`
	LastVerifiedAt      time.Time        `yaml:"last_verified_at" json:"lastVerifiedAt"`
	SourceHash          string           `yaml:"source_hash" json:"sourceHash"`
}

// Price is a per-1K-token price for one usage class. It wraps a decimal so
// cost math never goes through float64, and serializes to a plain string in
// YAML to keep record files diff-friendly.
type Price struct {
	decimal.Decimal
}

// PriceFromString parses a decimal price string.
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return Price{d}, nil
}

// PriceFromFloat converts a float price. Intended for tests and adapters
// that receive numeric JSON; stored values round-trip through decimal.
func PriceFromFloat(f float64) Price {
	return Price{decimal.NewFromFloat(f)}
}

func (p Price) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Price) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid price %q: %w", value.Line, value.Value, err)
	}
	p.Decimal = d
	return nil
}

// FieldChange records a single observable field change for diff reporting.
type FieldChange struct {
	Field    string
	OldValue any
	NewValue any
}

// HashPayload returns the content hash of a raw fetched payload, used for
// fast change comparison before falling back to a field-level diff.
func HashPayload(raw []byte) string {
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}

// Clone returns a deep copy. Store reads hand out clones so callers can't
// mutate the published record behind the index's back.
func (r *ModelRecord) Clone() *ModelRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Pricing != nil {
		c.Pricing = make(map[string]Price, len(r.Pricing))
		for class, price := range r.Pricing {
			c.Pricing[class] = price
		}
	}
	return &c
}

// PricingEqual reports whether two pricing maps carry the same usage classes
// at the same decimal values.
func PricingEqual(a, b map[string]Price) bool {
	if len(a) != len(b) {
		return false
	}
	for class, pa := range a {
		pb, ok := b[class]
		if !ok || !pa.Equal(pb.Decimal) {
			return false
		}
	}
	return true
}
