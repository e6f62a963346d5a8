package provider

import (
	"encoding/json"
)

// Payload is the normalized metadata shape every adapter emits. Prices are
// decimal strings, USD per 1K tokens, keyed by usage class.
type Payload struct {
	ModelID             string            `json:"modelId"`
	DisplayName         string            `json:"displayName"`
	Version             string            `json:"version,omitempty"`
	ContextWindowTokens int               `json:"contextWindowTokens"`
	Pricing             map[string]string `json:"pricing"`
	DocsURL             string            `json:"docsUrl"`
}

// Marshal encodes the payload as JSON, the shape the validator expects.
func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
