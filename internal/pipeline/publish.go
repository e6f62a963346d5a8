package pipeline

import (
	"context"
	"log/slog"
)

// PublishRequest carries everything a publisher needs to announce a
// dataset change.
type PublishRequest struct {
	Version string
	Report  *RunReport
	Draft   bool
}

// Publisher delivers the "dataset changed" signal. Implementations: git
// branch + pull request, structured log line, or nothing.
type Publisher interface {
	Publish(ctx context.Context, req *PublishRequest) error
}

// LogPublisher announces changes via structured logs only.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, req *PublishRequest) error {
	slog.Info("dataset updated",
		"version", req.Version,
		"updated", req.Report.Count(OutcomeUpdated),
		"changes", req.Report.TotalChanges(),
		"draft", req.Draft)
	return nil
}

// NopPublisher suppresses the publish signal entirely.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *PublishRequest) error { return nil }
