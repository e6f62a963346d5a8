package pipeline

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// gitRepo wraps the dataset checkout for branch-commit-push publishing.
type gitRepo struct {
	repo  *git.Repository
	wt    *git.Worktree
	token string
}

func openGitRepo(path, token string) (*gitRepo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return &gitRepo{repo: repo, wt: wt, token: token}, nil
}

// checkoutNewBranch creates a branch at HEAD and switches to it.
func (g *gitRepo) checkoutNewBranch(name string) error {
	head, err := g.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	branch := plumbing.NewBranchReferenceName(name)
	if err := g.repo.Storer.SetReference(plumbing.NewHashReference(branch, head.Hash())); err != nil {
		return fmt.Errorf("creating branch ref: %w", err)
	}
	return g.wt.Checkout(&git.CheckoutOptions{Branch: branch})
}

// commitAll stages every dataset change and commits it.
func (g *gitRepo) commitAll(message string) error {
	if _, err := g.wt.Add("."); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	_, err := g.wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "modelwatch",
			Email: "modelwatch@everstack.dev",
			When:  time.Now(),
		},
	})
	return err
}

func (g *gitRepo) push() error {
	return g.repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/heads/*"},
		Auth: &githttp.BasicAuth{
			Username: "x-access-token",
			Password: g.token,
		},
	})
}
