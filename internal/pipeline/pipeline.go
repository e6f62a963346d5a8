package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/everstacklabs/modelwatch/internal/cache"
	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/dataset"
	"github.com/everstacklabs/modelwatch/internal/diff"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
	"github.com/everstacklabs/modelwatch/internal/provider"
	"github.com/everstacklabs/modelwatch/internal/validate"
)

// Risk gate thresholds. Runs that trip them still publish, but as drafts.
const (
	draftChangeThreshold = 25
	draftPriceSwing      = 0.35
)

// DatasetStore is what the orchestrator needs from the dataset: the record
// read/write contract plus the version and manifest operations that run on
// publish.
type DatasetStore interface {
	dataset.Store
	Version() (string, error)
	BumpVersion(hasNew bool) (string, error)
	WriteManifest() error
}

var _ DatasetStore = (*dataset.FileStore)(nil)

// Runner orchestrates the full sync workflow: fetch, validate, diff,
// store, publish.
type Runner struct {
	cfg       *config.Config
	store     DatasetStore
	fetchers  map[string]provider.Fetcher
	publisher Publisher
	retry     RetryPolicy
	now       func() time.Time
}

// NewRunner wires a Runner from its parts. Most callers want New.
func NewRunner(cfg *config.Config, store DatasetStore, fetchers map[string]provider.Fetcher, pub Publisher) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     store,
		fetchers:  fetchers,
		publisher: pub,
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseBackoff: cfg.RetryBackoff(),
		},
		now: time.Now,
	}
}

// New builds a Runner from config: opens the dataset store, constructs the
// shared HTTP client, and instantiates one fetcher per configured provider.
func New(cfg *config.Config) (*Runner, error) {
	store, err := dataset.Open(cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}

	opts := []httpclient.Option{httpclient.WithRateLimit(cfg.RateLimitRPS)}
	if cfg.NoCache {
		opts = append(opts, httpclient.WithNoCache())
	} else {
		ttl, err := time.ParseDuration(cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("parsing cache_ttl: %w", err)
		}
		fc, err := cache.New(cfg.CacheDir, ttl)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		opts = append(opts, httpclient.WithCache(fc))
	}
	client := httpclient.New(opts...)

	fetchers := make(map[string]provider.Fetcher, len(cfg.Providers))
	for _, spec := range cfg.Providers {
		f, err := provider.New(spec, client)
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", spec.ID, err)
		}
		fetchers[spec.ID] = f
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		return nil, err
	}

	return NewRunner(cfg, store, fetchers, pub), nil
}

func buildPublisher(cfg *config.Config) (Publisher, error) {
	switch cfg.Publish.Mode {
	case "git":
		return NewGitPublisher(cfg.DatasetPath, cfg.GitHub)
	case "log", "":
		return LogPublisher{}, nil
	case "none":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown publish mode: %s", cfg.Publish.Mode)
	}
}

// Run syncs the given providers (all configured ones when empty) and
// publishes if anything changed. Provider failures land in the report;
// only setup and publish failures return an error.
func (r *Runner) Run(ctx context.Context, providerIDs []string) (*RunReport, error) {
	ids, err := r.resolveProviders(providerIDs)
	if err != nil {
		return nil, err
	}

	start := r.now()
	report := &RunReport{StartedAt: start, Outcomes: make([]ProviderOutcome, len(ids))}

	g, gctx := errgroup.WithContext(ctx)
	// SetLimit(0) would block every g.Go forever; the run must always
	// complete and return a report.
	limit := r.cfg.MaxConcurrentFetches
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if gctx.Err() != nil {
				report.Outcomes[i] = ProviderOutcome{Provider: id, Kind: OutcomeCancelled, Reason: gctx.Err().Error()}
				return nil
			}
			report.Outcomes[i] = r.syncProvider(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = r.now().Sub(start)

	if !report.HasUpdates() {
		slog.Info("sync complete, no dataset changes",
			"providers", len(ids),
			"failed", report.Count(OutcomeFetchFailed)+report.Count(OutcomeWriteFailed))
		return report, nil
	}

	if r.cfg.DryRun {
		slog.Info("dry run, skipping version bump and publish",
			"updated", report.Count(OutcomeUpdated))
		return report, nil
	}

	version, err := r.store.BumpVersion(report.HasNewModels())
	if err != nil {
		return report, fmt.Errorf("bumping version: %w", err)
	}
	report.Version = version

	if err := r.store.WriteManifest(); err != nil {
		return report, fmt.Errorf("writing manifest: %w", err)
	}

	req := &PublishRequest{Version: version, Report: report, Draft: assessRisk(report)}
	if err := r.publisher.Publish(ctx, req); err != nil {
		return report, fmt.Errorf("publishing: %w", err)
	}

	slog.Info("sync complete",
		"version", version,
		"updated", report.Count(OutcomeUpdated),
		"changes", report.TotalChanges(),
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// syncProvider runs fetch→validate→diff→store for one provider.
func (r *Runner) syncProvider(ctx context.Context, id string) ProviderOutcome {
	f := r.fetchers[id]

	raw, attempts, err := r.retry.fetchWithRetry(ctx, f, r.cfg.Timeout())
	if err != nil {
		if ctx.Err() != nil {
			return ProviderOutcome{Provider: id, Kind: OutcomeCancelled, Reason: err.Error(), Attempts: attempts}
		}
		slog.Error("fetch failed",
			"provider", id,
			"attempts", attempts,
			"class", provider.Classify(err).String(),
			"error", err)
		return ProviderOutcome{Provider: id, Kind: OutcomeFetchFailed, Reason: err.Error(), Attempts: attempts}
	}

	rec, err := validate.Validate(raw)
	if err != nil {
		slog.Warn("payload rejected", "provider", id, "error", err)
		return ProviderOutcome{Provider: id, Kind: OutcomeRejected, Reason: err.Error(), Attempts: attempts}
	}
	rec.LastVerifiedAt = r.now().UTC()
	rec.SourceHash = dataset.HashPayload(raw)

	existing, found := r.store.Get(rec.ModelID)
	if found && !diff.HasMaterialChange(existing, rec) {
		slog.Debug("no material change", "provider", id)
		return ProviderOutcome{Provider: id, Kind: OutcomeUnchanged, Attempts: attempts}
	}

	changes := diff.FieldChanges(existing, rec)
	if r.cfg.DryRun {
		slog.Info("dry run, would update", "provider", id, "changes", len(changes), "new", !found)
		return ProviderOutcome{Provider: id, Kind: OutcomeUpdated, Changes: changes, Attempts: attempts, IsNew: !found}
	}

	if err := r.store.Upsert(rec); err != nil {
		slog.Error("store write failed", "provider", id, "error", err)
		return ProviderOutcome{Provider: id, Kind: OutcomeWriteFailed, Reason: err.Error(), Attempts: attempts}
	}

	slog.Info("record updated", "provider", id, "changes", len(changes), "new", !found)
	return ProviderOutcome{Provider: id, Kind: OutcomeUpdated, Changes: changes, Attempts: attempts, IsNew: !found}
}

// Diff fetches and validates without writing, returning what a sync would
// change.
func (r *Runner) Diff(ctx context.Context, providerIDs []string) (*RunReport, error) {
	ids, err := r.resolveProviders(providerIDs)
	if err != nil {
		return nil, err
	}

	dry := *r.cfg
	dry.DryRun = true
	runner := NewRunner(&dry, r.store, r.fetchers, NopPublisher{})
	runner.now = r.now
	return runner.Run(ctx, ids)
}

func (r *Runner) resolveProviders(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return r.cfg.ProviderIDs(), nil
	}
	for _, id := range ids {
		if _, ok := r.fetchers[id]; !ok {
			return nil, fmt.Errorf("unknown provider: %s", id)
		}
	}
	return ids, nil
}

// assessRisk decides whether the publish should open as a draft: too many
// changes at once, or a price swing beyond the threshold in either
// direction.
func assessRisk(report *RunReport) bool {
	if report.TotalChanges() > draftChangeThreshold {
		return true
	}

	for _, o := range report.Outcomes {
		if o.Kind != OutcomeUpdated {
			continue
		}
		for _, c := range o.Changes {
			if !strings.HasPrefix(c.Field, "pricing.") {
				continue
			}
			oldStr, okOld := c.OldValue.(string)
			newStr, okNew := c.NewValue.(string)
			if !okOld || !okNew {
				continue
			}
			oldVal, err1 := decimal.NewFromString(oldStr)
			newVal, err2 := decimal.NewFromString(newStr)
			if err1 != nil || err2 != nil || oldVal.IsZero() {
				continue
			}
			delta := newVal.Sub(oldVal).Div(oldVal).Abs()
			if delta.GreaterThan(decimal.NewFromFloat(draftPriceSwing)) {
				return true
			}
		}
	}
	return false
}
