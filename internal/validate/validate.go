package validate

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/modelwatch/internal/dataset"
)

// ReasonCode classifies why a payload was rejected.
type ReasonCode string

const (
	ReasonMissingField ReasonCode = "missing_field"
	ReasonTypeMismatch ReasonCode = "type_mismatch"
	ReasonOutOfRange   ReasonCode = "out_of_range"
	ReasonMalformedURL ReasonCode = "malformed_url"
)

// Error is a validation failure with the offending field path and a
// machine-readable reason code. Operators use the code to tell "provider
// changed its response shape" apart from transport problems.
type Error struct {
	Field  string
	Reason ReasonCode
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("field %q: %s: %s", e.Field, e.Reason, e.Detail)
}

func errMissing(field string) *Error {
	return &Error{Field: field, Reason: ReasonMissingField, Detail: "required field is absent"}
}

func errType(field, want string) *Error {
	return &Error{Field: field, Reason: ReasonTypeMismatch, Detail: "expected " + want}
}

// Validate parses and checks one raw candidate payload, returning a fully
// formed record or the first validation error. It is pure and total: no
// network, no filesystem, and the same input always yields the same result.
//
// The raw payload is a self-describing JSON document:
//
//	{"modelId": "...", "displayName": "...", "version": "...",
//	 "contextWindowTokens": 200000,
//	 "pricing": {"input": "0.8", "output": "3.2"},
//	 "docsUrl": "https://..."}
//
// version is optional (not every source publishes a revision string);
// everything else is required. The caller stamps last_verified_at and
// source_hash after validation passes.
func Validate(raw []byte) (*dataset.ModelRecord, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errType("", "JSON object")
	}

	modelID, err := requireString(doc, "modelId")
	if err != nil {
		return nil, err
	}
	displayName, err := requireString(doc, "displayName")
	if err != nil {
		return nil, err
	}

	version := ""
	if rawVersion, ok := doc["version"]; ok {
		if err := json.Unmarshal(rawVersion, &version); err != nil {
			return nil, errType("version", "string")
		}
	}

	rawWindow, ok := doc["contextWindowTokens"]
	if !ok {
		return nil, errMissing("contextWindowTokens")
	}
	var window int
	if err := json.Unmarshal(rawWindow, &window); err != nil {
		return nil, errType("contextWindowTokens", "integer")
	}
	if window <= 0 {
		return nil, &Error{
			Field:  "contextWindowTokens",
			Reason: ReasonOutOfRange,
			Detail: fmt.Sprintf("value %d must be positive", window),
		}
	}

	pricing, err := parsePricing(doc)
	if err != nil {
		return nil, err
	}

	docsURL, err := requireString(doc, "docsUrl")
	if err != nil {
		return nil, err
	}
	if err := checkURL("docsUrl", docsURL); err != nil {
		return nil, err
	}

	return &dataset.ModelRecord{
		ModelID:             modelID,
		DisplayName:         displayName,
		Version:             version,
		ContextWindowTokens: window,
		Pricing:             pricing,
		DocsURL:             docsURL,
	}, nil
}

func requireString(doc map[string]json.RawMessage, field string) (string, *Error) {
	raw, ok := doc[field]
	if !ok {
		return "", errMissing(field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errType(field, "string")
	}
	if s == "" {
		return "", errMissing(field)
	}
	return s, nil
}

func parsePricing(doc map[string]json.RawMessage) (map[string]dataset.Price, *Error) {
	rawPricing, ok := doc["pricing"]
	if !ok {
		return nil, errMissing("pricing")
	}

	// Prices arrive as JSON numbers or decimal strings depending on the
	// provider; decimal.Decimal accepts both.
	var classes map[string]decimal.Decimal
	if err := json.Unmarshal(rawPricing, &classes); err != nil {
		return nil, errType("pricing", "object of usage class to decimal price")
	}

	if len(classes) == 0 {
		return nil, errMissing("pricing")
	}

	pricing := make(map[string]dataset.Price, len(classes))
	for class, d := range classes {
		if d.IsNegative() {
			return nil, &Error{
				Field:  "pricing." + class,
				Reason: ReasonOutOfRange,
				Detail: fmt.Sprintf("price %s must be non-negative", d),
			}
		}
		pricing[class] = dataset.Price{Decimal: d}
	}
	return pricing, nil
}

func checkURL(field, value string) *Error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &Error{
			Field:  field,
			Reason: ReasonMalformedURL,
			Detail: fmt.Sprintf("%q is not an absolute http(s) URL", value),
		}
	}
	return nil
}

// ValidateRecord re-checks the invariants of an already-published record.
// Used by the validate CLI command as a CI check over the dataset on disk.
func ValidateRecord(rec *dataset.ModelRecord) error {
	if rec.ModelID == "" {
		return errMissing("model_id")
	}
	if rec.DisplayName == "" {
		return errMissing("display_name")
	}
	if rec.ContextWindowTokens <= 0 {
		return &Error{
			Field:  "context_window_tokens",
			Reason: ReasonOutOfRange,
			Detail: fmt.Sprintf("value %d must be positive", rec.ContextWindowTokens),
		}
	}
	if len(rec.Pricing) == 0 {
		return errMissing("pricing")
	}
	for class, price := range rec.Pricing {
		if price.IsNegative() {
			return &Error{
				Field:  "pricing." + class,
				Reason: ReasonOutOfRange,
				Detail: fmt.Sprintf("price %s must be non-negative", price),
			}
		}
	}
	if err := checkURL("docs_url", rec.DocsURL); err != nil {
		return err
	}
	return nil
}
