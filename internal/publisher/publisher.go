// Package publisher implements the C6 VCS Publisher: it commits and
// pushes the sandbox's working copy, then opens a pull request carrying
// the change.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v69/github"

	"github.com/repopal/repopal/internal/changeset"
	"github.com/repopal/repopal/internal/sandbox"
)

const (
	commitAuthorName  = "repopal"
	commitAuthorEmail = "repopal@users.noreply.github.com"
)

// Publication is the result of a successful publish.
type Publication struct {
	Branch string
	URL    string
	Number int
}

// Publisher opens pull requests on GitHub. Slack and Linear events are
// expected to name a GitHub repository as their change target even when
// the triggering webhook came from a different provider: RepoPal's
// repositories always live on a code host, the tracker or chat surface
// is only where the request and the response thread
// live.
type Publisher struct {
	client *github.Client
}

// New constructs a Publisher. token is attached to every API request via
// WithAuthToken, so httpClient itself need not carry credentials, matching
// the teacher's forge-client construction.
func New(httpClient *http.Client, token, baseURL string) (*Publisher, error) {
	client := github.NewClient(httpClient).WithAuthToken(token)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("publisher: configure enterprise urls: %w", err)
		}
	}
	return &Publisher{client: client}, nil
}

// ErrNoChanges is returned when Publish is asked to publish an empty
// change set; C7 should never call Publish in that case, but the guard
// exists so a caller mistake fails loudly rather than opening an empty PR.
var ErrNoChanges = fmt.Errorf("publisher: change set is empty")

// Publish commits the session's working copy, pushes the work branch,
// and opens a pull request against baseBranch titled title with body
// summary. repoFullName is "owner/repo".
func (p *Publisher) Publish(ctx context.Context, sess *sandbox.Session, changes changeset.ChangeSet, repoFullName, baseBranch, workBranch, title, summary string) (Publication, error) {
	if changes.Empty() {
		return Publication{}, ErrNoChanges
	}

	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return Publication{}, err
	}

	if _, err := sess.Repo().CommitAndPush(ctx, commitAuthorName, commitAuthorEmail, title); err != nil {
		return Publication{}, fmt.Errorf("publisher: commit and push: %w", err)
	}

	pr, resp, err := p.client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: &title,
		Head:  &workBranch,
		Base:  &baseBranch,
		Body:  &summary,
	})
	checkRate(resp)
	if err != nil {
		return Publication{}, fmt.Errorf("publisher: create pull request: %w", err)
	}

	return Publication{Branch: workBranch, URL: pr.GetHTMLURL(), Number: pr.GetNumber()}, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("publisher: invalid repo format %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

const rateLimitWarningThreshold = 100

func checkRate(resp *github.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Remaining > 0 && resp.Rate.Remaining < rateLimitWarningThreshold {
		slog.Warn("publisher: github rate limit running low", "remaining", resp.Rate.Remaining, "reset", resp.Rate.Reset.Time)
	}
}
