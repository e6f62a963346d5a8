package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/dataset"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
	"github.com/everstacklabs/modelwatch/internal/provider"
)

type stubFetcher struct {
	id      string
	payload []byte
	err     error
	calls   int
}

func (s *stubFetcher) ProviderID() string { return s.id }

func (s *stubFetcher) Fetch(context.Context) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

type capturePublisher struct {
	reqs []*PublishRequest
}

func (p *capturePublisher) Publish(_ context.Context, req *PublishRequest) error {
	p.reqs = append(p.reqs, req)
	return nil
}

func payloadJSON(modelID, version, inputPrice string) []byte {
	return fmt.Appendf(nil,
		`{"modelId":%q,"displayName":"Model %s","version":%q,"contextWindowTokens":300000,"pricing":{"input":%q,"output":"0.0032"},"docsUrl":"https://docs.example.com/%s"}`,
		modelID, modelID, version, inputPrice, modelID)
}

func newTestRunner(t *testing.T, fetchers map[string]provider.Fetcher) (*Runner, *capturePublisher) {
	t.Helper()

	specs := make([]config.ProviderSpec, 0, len(fetchers))
	for id := range fetchers {
		specs = append(specs, config.ProviderSpec{ID: id, Kind: "stub"})
	}
	cfg := &config.Config{
		DatasetPath:          t.TempDir(),
		TimeoutMS:            1000,
		MaxRetries:           3,
		RetryBackoffMS:       1,
		MaxConcurrentFetches: 2,
		Providers:            specs,
	}

	store, err := dataset.Open(cfg.DatasetPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	pub := &capturePublisher{}
	r := NewRunner(cfg, store, fetchers, pub)
	r.retry.sleep = func(context.Context, time.Duration) error { return nil }
	return r, pub
}

func outcomeFor(t *testing.T, report *RunReport, id string) ProviderOutcome {
	t.Helper()
	for _, o := range report.Outcomes {
		if o.Provider == id {
			return o
		}
	}
	t.Fatalf("no outcome for provider %s", id)
	return ProviderOutcome{}
}

func TestRunMixedOutcomes(t *testing.T) {
	fetchers := map[string]provider.Fetcher{
		"amazon-nova": &stubFetcher{id: "amazon-nova", payload: payloadJSON("amazon-nova", "1.0", "0.0008")},
		"broken-api":  &stubFetcher{id: "broken-api", err: &httpclient.StatusError{StatusCode: 404}},
		"bad-payload": &stubFetcher{id: "bad-payload", payload: []byte(`{"modelId":"bad-payload"}`)},
	}
	r, pub := newTestRunner(t, fetchers)

	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := outcomeFor(t, report, "amazon-nova"); got.Kind != OutcomeUpdated || !got.IsNew {
		t.Errorf("amazon-nova outcome = %+v, want new update", got)
	}
	if got := outcomeFor(t, report, "broken-api"); got.Kind != OutcomeFetchFailed {
		t.Errorf("broken-api outcome = %s, want fetch_failed", got.Kind)
	}
	if got := outcomeFor(t, report, "bad-payload"); got.Kind != OutcomeRejected {
		t.Errorf("bad-payload outcome = %s, want rejected", got.Kind)
	}

	// New model bumps minor from the default 0.1.0.
	if report.Version != "0.2.0" {
		t.Errorf("version = %q, want 0.2.0", report.Version)
	}
	if len(pub.reqs) != 1 {
		t.Fatalf("got %d publishes, want 1", len(pub.reqs))
	}
	if pub.reqs[0].Draft {
		t.Error("small run should not publish as draft")
	}

	if _, ok := r.store.Get("amazon-nova"); !ok {
		t.Error("updated record should be in the store")
	}
}

func TestRunRetriesTransientUntilExhausted(t *testing.T) {
	f := &stubFetcher{id: "flaky", err: &httpclient.StatusError{StatusCode: 503}}
	r, pub := newTestRunner(t, map[string]provider.Fetcher{"flaky": f})

	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := outcomeFor(t, report, "flaky")
	if got.Kind != OutcomeFetchFailed {
		t.Fatalf("outcome = %s, want fetch_failed", got.Kind)
	}
	if got.Attempts != 3 || f.calls != 3 {
		t.Errorf("attempts = %d (calls %d), want 3", got.Attempts, f.calls)
	}
	if len(pub.reqs) != 0 {
		t.Error("failed run should not publish")
	}
}

func TestRunPermanentFailureShortCircuits(t *testing.T) {
	f := &stubFetcher{id: "gone", err: &httpclient.StatusError{StatusCode: 404}}
	r, _ := newTestRunner(t, map[string]provider.Fetcher{"gone": f})

	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := outcomeFor(t, report, "gone")
	if got.Attempts != 1 || f.calls != 1 {
		t.Errorf("attempts = %d (calls %d), want 1 for permanent failure", got.Attempts, f.calls)
	}
}

func TestRunUnchangedSkipsPublish(t *testing.T) {
	payload := payloadJSON("amazon-nova", "1.0", "0.0008")
	f := &stubFetcher{id: "amazon-nova", payload: payload}
	r, pub := newTestRunner(t, map[string]provider.Fetcher{"amazon-nova": f})

	// First run publishes the record.
	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(pub.reqs) != 1 {
		t.Fatalf("got %d publishes after first run, want 1", len(pub.reqs))
	}

	// Identical payload: same source hash, no material change.
	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := outcomeFor(t, report, "amazon-nova"); got.Kind != OutcomeUnchanged {
		t.Errorf("outcome = %s, want unchanged", got.Kind)
	}
	if len(pub.reqs) != 1 {
		t.Errorf("unchanged run should not publish, got %d publishes", len(pub.reqs))
	}
	if report.Version != "" {
		t.Errorf("unchanged run should not bump version, got %q", report.Version)
	}
}

func TestRunVersionUpdate(t *testing.T) {
	f := &stubFetcher{id: "amazon-nova", payload: payloadJSON("amazon-nova", "1.0", "0.0008")}
	r, _ := newTestRunner(t, map[string]provider.Fetcher{"amazon-nova": f})

	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// The provider ships 2.0 with a new input price.
	f.payload = payloadJSON("amazon-nova", "2.0", "0.001")
	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	got := outcomeFor(t, report, "amazon-nova")
	if got.Kind != OutcomeUpdated || got.IsNew {
		t.Fatalf("outcome = %+v, want update of existing record", got)
	}

	fields := make(map[string]bool)
	for _, c := range got.Changes {
		fields[c.Field] = true
	}
	if !fields["version"] || !fields["pricing.input"] {
		t.Errorf("changes = %v, want version and pricing.input", fields)
	}

	// Update without new models bumps patch: 0.2.0 → 0.2.1.
	if report.Version != "0.2.1" {
		t.Errorf("version = %q, want 0.2.1", report.Version)
	}

	rec, ok := r.store.Get("amazon-nova")
	if !ok {
		t.Fatal("record missing from store")
	}
	if rec.Version != "2.0" {
		t.Errorf("stored version = %q, want 2.0", rec.Version)
	}
}

func TestRunCompletesWithZeroConcurrency(t *testing.T) {
	fetchers := map[string]provider.Fetcher{
		"a": &stubFetcher{id: "a", payload: payloadJSON("a", "1.0", "0.001")},
		"b": &stubFetcher{id: "b", payload: payloadJSON("b", "1.0", "0.001")},
	}
	r, _ := newTestRunner(t, fetchers)
	r.cfg.MaxConcurrentFetches = 0

	done := make(chan struct{})
	var report *RunReport
	var err error
	go func() {
		report, err = r.Run(context.Background(), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return with max_concurrent_fetches = 0")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Errorf("got %d outcomes, want 2", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.Kind != OutcomeUpdated {
			t.Errorf("provider %s outcome = %s, want updated", o.Provider, o.Kind)
		}
	}
}

func TestFetchWithRetryZeroAttemptsStillFetchesOnce(t *testing.T) {
	f := &stubFetcher{id: "x", payload: []byte(`{}`)}
	p := RetryPolicy{MaxAttempts: 0, BaseBackoff: time.Millisecond}

	raw, attempts, err := p.fetchWithRetry(context.Background(), f, time.Second)
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if attempts != 1 || f.calls != 1 {
		t.Errorf("attempts = %d (calls %d), want 1", attempts, f.calls)
	}
	if raw == nil {
		t.Error("payload must not be nil on success")
	}
}

func TestRunCancelledContext(t *testing.T) {
	fetchers := map[string]provider.Fetcher{
		"a": &stubFetcher{id: "a", payload: payloadJSON("a", "1.0", "0.001")},
		"b": &stubFetcher{id: "b", payload: payloadJSON("b", "1.0", "0.001")},
	}
	r, pub := newTestRunner(t, fetchers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range report.Outcomes {
		if o.Kind != OutcomeCancelled {
			t.Errorf("provider %s outcome = %s, want cancelled", o.Provider, o.Kind)
		}
	}
	if len(pub.reqs) != 0 {
		t.Error("cancelled run should not publish")
	}
}

func TestRunUnknownProvider(t *testing.T) {
	r, _ := newTestRunner(t, map[string]provider.Fetcher{})
	if _, err := r.Run(context.Background(), []string{"nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDiffDoesNotWrite(t *testing.T) {
	f := &stubFetcher{id: "amazon-nova", payload: payloadJSON("amazon-nova", "1.0", "0.0008")}
	r, pub := newTestRunner(t, map[string]provider.Fetcher{"amazon-nova": f})

	report, err := r.Diff(context.Background(), nil)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if got := outcomeFor(t, report, "amazon-nova"); got.Kind != OutcomeUpdated || !got.IsNew {
		t.Errorf("outcome = %+v, want pending new update", got)
	}
	if _, ok := r.store.Get("amazon-nova"); ok {
		t.Error("diff must not write to the store")
	}
	if len(pub.reqs) != 0 {
		t.Error("diff must not publish")
	}
}

func TestAssessRisk(t *testing.T) {
	priceChange := func(old, new string) ProviderOutcome {
		return ProviderOutcome{
			Provider: "p",
			Kind:     OutcomeUpdated,
			Changes:  []dataset.FieldChange{{Field: "pricing.input", OldValue: old, NewValue: new}},
		}
	}

	tests := []struct {
		name   string
		report *RunReport
		want   bool
	}{
		{"small price bump", &RunReport{Outcomes: []ProviderOutcome{priceChange("1.0", "1.1")}}, false},
		{"large price increase", &RunReport{Outcomes: []ProviderOutcome{priceChange("1.0", "2.0")}}, true},
		{"large price drop", &RunReport{Outcomes: []ProviderOutcome{priceChange("1.0", "0.5")}}, true},
		{"exactly at threshold", &RunReport{Outcomes: []ProviderOutcome{priceChange("1.0", "1.35")}}, false},
		{"new class has no old value", &RunReport{Outcomes: []ProviderOutcome{{
			Kind:    OutcomeUpdated,
			Changes: []dataset.FieldChange{{Field: "pricing.cache_read", OldValue: nil, NewValue: "0.1"}},
		}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assessRisk(tt.report); got != tt.want {
				t.Errorf("assessRisk = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("many changes", func(t *testing.T) {
		changes := make([]dataset.FieldChange, 26)
		for i := range changes {
			changes[i] = dataset.FieldChange{Field: "display_name", OldValue: "a", NewValue: "b"}
		}
		report := &RunReport{Outcomes: []ProviderOutcome{{Kind: OutcomeUpdated, Changes: changes}}}
		if !assessRisk(report) {
			t.Error("26 changes should publish as draft")
		}
	})
}
