package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	"github.com/everstacklabs/modelwatch/internal/config"
)

// GitPublisher announces dataset changes as a pull request: branch, commit,
// push, then open the PR against the base branch. Risky runs open as draft.
type GitPublisher struct {
	datasetPath string
	gh          config.GitHubConfig

	now func() time.Time
}

// NewGitPublisher builds a git publisher for the dataset checkout.
func NewGitPublisher(datasetPath string, gh config.GitHubConfig) (*GitPublisher, error) {
	if gh.Token == "" {
		return nil, fmt.Errorf("git publisher requires a GitHub token")
	}
	if gh.Owner == "" || gh.Repo == "" {
		return nil, fmt.Errorf("git publisher requires github.owner and github.repo")
	}
	return &GitPublisher{datasetPath: datasetPath, gh: gh, now: time.Now}, nil
}

func (p *GitPublisher) Publish(ctx context.Context, req *PublishRequest) error {
	branch := fmt.Sprintf("modelwatch/sync-%s", p.now().UTC().Format("20060102-150405"))
	commitMsg := fmt.Sprintf("chore(dataset): sync model metadata to v%s", req.Version)

	repo, err := openGitRepo(p.datasetPath, p.gh.Token)
	if err != nil {
		return err
	}
	if err := repo.checkoutNewBranch(branch); err != nil {
		return err
	}
	if err := repo.commitAll(commitMsg); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if err := repo.push(); err != nil {
		return fmt.Errorf("pushing: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.gh.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	title := fmt.Sprintf("chore(dataset): model metadata sync (v%s)", req.Version)
	body := req.Report.Render()
	base := p.gh.BaseBranch

	pr, _, err := client.PullRequests.Create(ctx, p.gh.Owner, p.gh.Repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &branch,
		Base:  &base,
		Draft: &req.Draft,
	})
	if err != nil {
		return fmt.Errorf("creating PR: %w", err)
	}

	slog.Info("PR created",
		"number", pr.GetNumber(),
		"draft", req.Draft,
		"url", pr.GetHTMLURL())
	return nil
}
