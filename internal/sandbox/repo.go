package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Repo is a scratch clone of the target repository, checked out onto a
// fresh work branch.
type Repo struct {
	dir  string
	repo *git.Repository
	auth *http.BasicAuth
}

// cloneRepo clones cloneURL into a fresh directory under workdirRoot and
// creates workBranch off baseBranch. The token is passed as the git
// credential and is never written to disk or logged; go-git only ever
// holds it in memory for the duration of network operations.
func cloneRepo(ctx context.Context, workdirRoot, cloneURL, token, baseBranch, workBranch string) (*Repo, error) {
	if err := os.MkdirAll(workdirRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir root: %w", err)
	}
	dir, err := os.MkdirTemp(workdirRoot, "repopal-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	auth := &http.BasicAuth{Username: "x-access-token", Password: token}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           cloneURL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(baseBranch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("clone %s: %w", cloneURL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	headRef, err := repo.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(workBranch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, headRef.Hash())); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create branch %s: %w", workBranch, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef}); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("checkout %s: %w", workBranch, err)
	}

	return &Repo{dir: dir, repo: repo, auth: auth}, nil
}

// cleanup removes the scratch clone from disk. It is the repo-specific
// leaf of Session's acquisition stack: the container is always torn
// down before this runs.
func (r *Repo) cleanup() error {
	return os.RemoveAll(r.dir)
}

// Dir is the filesystem path of the clone's root, used by the change
// extractor and publisher to resolve files the container wrote.
func (r *Repo) Dir() string {
	return r.dir
}

// Handle exposes the underlying go-git repository for the change
// extractor's tracked-diff computation.
func (r *Repo) Handle() *git.Repository {
	return r.repo
}

// CommitAndPush stages every change in the worktree, commits with the
// given author and message, and pushes the current branch upstream.
func (r *Repo) CommitAndPush(ctx context.Context, authorName, authorEmail, message string) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	if _, err := wt.Add("."); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("stage changes: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}

	if err := r.repo.PushContext(ctx, &git.PushOptions{Auth: r.auth}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("push: %w", err)
	}

	return hash, nil
}

// path joins a relative path onto the clone's root.
func (r *Repo) path(rel string) string {
	return filepath.Join(r.dir, rel)
}
