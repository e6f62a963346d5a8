package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
	"github.com/everstacklabs/modelwatch/internal/provider"
)

func init() {
	provider.Register("restapi", func(spec config.ProviderSpec, client *httpclient.Client) (provider.Fetcher, error) {
		if spec.BaseURL == "" {
			return nil, fmt.Errorf("restapi adapter %s: base_url required", spec.ID)
		}
		if spec.Model == "" {
			return nil, fmt.Errorf("restapi adapter %s: model required", spec.ID)
		}
		return &Adapter{
			providerID:   spec.ID,
			model:        spec.Model,
			baseURL:      strings.TrimSuffix(spec.BaseURL, "/"),
			apiKey:       spec.APIKey,
			apiKeyHeader: spec.APIKeyHeader,
			displayName:  spec.DisplayName,
			client:       client,
		}, nil
	})
}

// Adapter fetches one model's metadata from a provider's model-detail
// endpoint: GET {base_url}/models/{model}.
type Adapter struct {
	providerID   string
	model        string
	baseURL      string
	apiKey       string
	apiKeyHeader string
	displayName  string
	client       *httpclient.Client
}

func (a *Adapter) ProviderID() string { return a.providerID }

// detailResponse covers the common shapes model-detail endpoints return.
// Prices may be JSON numbers or decimal strings, USD per 1K tokens.
type detailResponse struct {
	ModelID             string                     `json:"modelId"`
	ID                  string                     `json:"id"`
	DisplayName         string                     `json:"displayName"`
	Name                string                     `json:"name"`
	Version             string                     `json:"version"`
	ContextWindowTokens int                        `json:"contextWindowTokens"`
	ContextWindow       int                        `json:"contextWindow"`
	Pricing             map[string]json.RawMessage `json:"pricing"`
	DocsURL             string                     `json:"docsUrl"`
}

func (a *Adapter) Fetch(ctx context.Context) ([]byte, error) {
	headers := map[string]string{}
	if a.apiKey != "" {
		if a.apiKeyHeader != "" {
			headers[a.apiKeyHeader] = a.apiKey
		} else {
			headers["Authorization"] = "Bearer " + a.apiKey
		}
	}

	url := a.baseURL + "/models/" + a.model
	resp, err := a.client.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return a.normalize(resp.Body)
}

func (a *Adapter) normalize(raw []byte) ([]byte, error) {
	var d detailResponse
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, provider.Permanentf("decoding %s response: %w", a.providerID, err)
	}

	pricing := make(map[string]string, len(d.Pricing))
	for class, v := range d.Pricing {
		price, err := parsePrice(v)
		if err != nil {
			return nil, provider.Permanentf("parsing %s price %q: %w", a.providerID, class, err)
		}
		pricing[class] = price.String()
	}
	if len(pricing) == 0 {
		return nil, provider.Permanentf("%s response has no pricing", a.providerID)
	}

	display := firstNonEmpty(d.DisplayName, d.Name, a.displayName)
	window := d.ContextWindowTokens
	if window == 0 {
		window = d.ContextWindow
	}
	docsURL := d.DocsURL
	if docsURL == "" {
		docsURL = a.baseURL + "/models/" + a.model
	}

	payload := &provider.Payload{
		ModelID:             a.providerID,
		DisplayName:         display,
		Version:             d.Version,
		ContextWindowTokens: window,
		Pricing:             pricing,
		DocsURL:             docsURL,
	}
	return payload.Marshal()
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return decimal.Zero, fmt.Errorf("price is neither string nor number")
	}
	return decimal.NewFromFloat(f), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
