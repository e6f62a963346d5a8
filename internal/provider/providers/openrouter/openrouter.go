package openrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
	"github.com/everstacklabs/modelwatch/internal/provider"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

func init() {
	provider.Register("openrouter", func(spec config.ProviderSpec, client *httpclient.Client) (provider.Fetcher, error) {
		if spec.Model == "" {
			return nil, fmt.Errorf("openrouter adapter %s: model slug required", spec.ID)
		}
		base := spec.BaseURL
		if base == "" {
			base = defaultBaseURL
		}
		return &Adapter{
			providerID: spec.ID,
			slug:       spec.Model,
			baseURL:    base,
			apiKey:     spec.APIKey,
			client:     client,
		}, nil
	})
}

// Adapter fetches one model's metadata from the OpenRouter model listing.
type Adapter struct {
	providerID string
	slug       string
	baseURL    string
	apiKey     string
	client     *httpclient.Client
}

func (a *Adapter) ProviderID() string { return a.providerID }

// OpenRouter /models response types. Prices come back as per-token decimal
// strings.
type modelsResponse struct {
	Data []apiModel `json:"data"`
}

type apiModel struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ContextLength int        `json:"context_length"`
	Pricing       apiPricing `json:"pricing"`
}

type apiPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

func (a *Adapter) Fetch(ctx context.Context) ([]byte, error) {
	headers := map[string]string{}
	if a.apiKey != "" {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	resp, err := a.client.Get(ctx, a.baseURL+"/models", headers)
	if err != nil {
		return nil, err
	}

	var parsed modelsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, provider.Permanentf("decoding openrouter response: %w", err)
	}

	for _, m := range parsed.Data {
		if m.ID != a.slug {
			continue
		}
		return a.normalize(m)
	}
	return nil, provider.Permanentf("model %s not in openrouter listing", a.slug)
}

func (a *Adapter) normalize(m apiModel) ([]byte, error) {
	pricing := make(map[string]string)
	if p, err := perThousand(m.Pricing.Prompt); err == nil && !p.IsZero() {
		pricing["input"] = p.String()
	}
	if p, err := perThousand(m.Pricing.Completion); err == nil && !p.IsZero() {
		pricing["output"] = p.String()
	}
	if len(pricing) == 0 {
		return nil, provider.Permanentf("model %s has no usable pricing", a.slug)
	}

	payload := &provider.Payload{
		ModelID:             a.providerID,
		DisplayName:         m.Name,
		ContextWindowTokens: m.ContextLength,
		Pricing:             pricing,
		DocsURL:             "https://openrouter.ai/" + m.ID,
	}
	return payload.Marshal()
}

// perThousand converts a per-token price string to USD per 1K tokens.
func perThousand(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Mul(decimal.NewFromInt(1000)), nil
}
