package docs

import (
	"context"
	"fmt"
	"strings"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/htmlutil"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
	"github.com/everstacklabs/modelwatch/internal/provider"
)

func init() {
	provider.Register("docs", func(spec config.ProviderSpec, client *httpclient.Client) (provider.Fetcher, error) {
		if spec.DocsURL == "" {
			return nil, fmt.Errorf("docs adapter %s: docs_url required", spec.ID)
		}
		if spec.Selector == "" {
			return nil, fmt.Errorf("docs adapter %s: selector required", spec.ID)
		}
		if spec.RowLabel == "" {
			return nil, fmt.Errorf("docs adapter %s: row_label required", spec.ID)
		}
		if spec.DisplayName == "" {
			return nil, fmt.Errorf("docs adapter %s: display_name required", spec.ID)
		}
		if spec.ContextWindowTokens <= 0 {
			return nil, fmt.Errorf("docs adapter %s: context_window_tokens required", spec.ID)
		}
		return &Adapter{spec: spec, client: client}, nil
	})
}

// Adapter scrapes one model's pricing row from a provider docs page.
// Fields a pricing table cannot supply (display name, context window)
// come from config.
type Adapter struct {
	spec   config.ProviderSpec
	client *httpclient.Client
}

func (a *Adapter) ProviderID() string { return a.spec.ID }

func (a *Adapter) Fetch(ctx context.Context) ([]byte, error) {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (compatible; modelwatch/1.0)",
		"Accept":     "text/html",
	}
	resp, err := a.client.Get(ctx, a.spec.DocsURL, headers)
	if err != nil {
		return nil, err
	}
	return a.normalize(resp.Body)
}

func (a *Adapter) normalize(raw []byte) ([]byte, error) {
	doc, err := htmlutil.Parse(raw)
	if err != nil {
		return nil, provider.Permanentf("parsing %s docs page: %w", a.spec.ID, err)
	}

	rows := htmlutil.TableRows(doc, a.spec.Selector)
	if len(rows) == 0 {
		return nil, provider.Permanentf("no pricing table at %q on %s", a.spec.Selector, a.spec.DocsURL)
	}

	row := findRow(rows, a.spec.RowLabel)
	if row == nil {
		return nil, provider.Permanentf("no pricing row matching %q on %s", a.spec.RowLabel, a.spec.DocsURL)
	}

	pricing := make(map[string]string)
	for header, cell := range row {
		class, ok := usageClass(header)
		if !ok {
			continue
		}
		if price, ok := htmlutil.ParsePriceDollars(cell); ok {
			pricing[class] = price.String()
		}
	}
	if len(pricing) == 0 {
		return nil, provider.Permanentf("pricing row for %q has no parseable prices", a.spec.RowLabel)
	}

	payload := &provider.Payload{
		ModelID:             a.spec.ID,
		DisplayName:         a.spec.DisplayName,
		ContextWindowTokens: a.spec.ContextWindowTokens,
		Pricing:             pricing,
		DocsURL:             a.spec.DocsURL,
	}
	return payload.Marshal()
}

// findRow picks the first row whose first-ish cell contains the label,
// case-insensitively.
func findRow(rows []map[string]string, label string) map[string]string {
	needle := strings.ToLower(label)
	for _, row := range rows {
		for _, cell := range row {
			if strings.Contains(strings.ToLower(cell), needle) {
				return row
			}
		}
	}
	return nil
}

// usageClass maps a table header to a pricing usage class.
func usageClass(header string) (string, bool) {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "input"), strings.Contains(h, "prompt"):
		return "input", true
	case strings.Contains(h, "output"), strings.Contains(h, "completion"):
		return "output", true
	case strings.Contains(h, "cache"):
		return "cache_read", true
	}
	return "", false
}
