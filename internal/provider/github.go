package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/go-github/v69/github"

	"github.com/repopal/repopal/internal/event"
)

// rateLimitWarningThreshold mirrors the forge-client pattern of warning
// when the API's remaining rate-limit quota drops low, so an operator can
// see it coming before requests start failing outright.
const rateLimitWarningThreshold = 100

// GitHub implements Adapter for code-host webhooks shaped like GitHub's
// issue/pull_request/issue_comment/push events.
type GitHub struct {
	secret string
	client *github.Client
}

// NewGitHub constructs a GitHub adapter. baseURL is only needed for GitHub
// Enterprise; pass "" for github.com.
func NewGitHub(httpClient *http.Client, secret, token, baseURL string) (*GitHub, error) {
	client := github.NewClient(httpClient).WithAuthToken(token)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("github: configure enterprise urls: %w", err)
		}
	}

	return &GitHub{secret: secret, client: client}, nil
}

func (g *GitHub) checkRate(resp *github.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Remaining > 0 && resp.Rate.Remaining < rateLimitWarningThreshold {
		slog.Warn("github: rate limit running low", "remaining", resp.Rate.Remaining, "reset", resp.Rate.Reset.Time)
	}
}

// Validate computes HMAC-SHA256 over the raw body exactly as received and
// compares it in constant time against the "sha256=<hex>" header value.
// It never re-marshals the payload (the critical contract of P2).
func (g *GitHub) Validate(headers map[string][]string, rawBody []byte) bool {
	sig := headerValue(headers, "X-Hub-Signature-256")
	if sig == "" {
		return false
	}

	const prefix = "sha256="
	if !strings.HasPrefix(sig, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(sig, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(rawBody)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}

// Normalize performs tagged dispatch on the payload shape: pull_request →
// pull-request, comment → comment, issue/issues → issue, else push.
func (g *GitHub) Normalize(rawBody []byte) (event.Event, error) {
	var shape map[string]any
	if err := json.Unmarshal(rawBody, &shape); err != nil {
		return event.Event{}, fmt.Errorf("github: decode payload: %w", err)
	}

	action, _ := shape["action"].(string)

	ev := event.Event{
		Provider:   event.ProviderGitHub,
		Action:     action,
		RawPayload: rawBody,
	}

	repo := repoFullName(shape)
	ev.Payload.Repository = repo

	switch {
	case shape["pull_request"] != nil:
		pr, _ := shape["pull_request"].(map[string]any)
		title, _ := pr["title"].(string)
		body, _ := pr["body"].(string)
		login := userLogin(pr["user"])
		url, _ := pr["html_url"].(string)

		ev.Kind = event.KindPullRequest
		ev.Payload.Title = title
		ev.Payload.Description = body
		ev.Payload.User = login
		ev.Payload.URL = url
		ev.UserRequest = fmt.Sprintf("Review pull request: %s\nDescription: %s\nAuthor: %s", title, body, login)

	case shape["comment"] != nil:
		comment, _ := shape["comment"].(map[string]any)
		body, _ := comment["body"].(string)
		login := userLogin(comment["user"])
		url, _ := comment["html_url"].(string)

		parent := "issue"
		if shape["pull_request"] != nil {
			parent = "pull request"
		} else if issue, ok := shape["issue"].(map[string]any); ok {
			if _, hasPR := issue["pull_request"]; hasPR {
				parent = "pull request"
			}
		}

		ev.Kind = event.KindComment
		ev.Payload.Description = body
		ev.Payload.User = login
		ev.Payload.URL = url
		ev.UserRequest = fmt.Sprintf("Comment on %s: %s\nAuthor: %s", parent, body, login)

	case shape["issue"] != nil, shape["issues"] != nil:
		issue, _ := shape["issue"].(map[string]any)
		if issue == nil {
			issue, _ = shape["issues"].(map[string]any)
		}
		title, _ := issue["title"].(string)
		body, _ := issue["body"].(string)
		login := userLogin(issue["user"])
		url, _ := issue["html_url"].(string)

		ev.Kind = event.KindIssue
		ev.Payload.Title = title
		ev.Payload.Description = body
		ev.Payload.User = login
		ev.Payload.URL = url
		ev.UserRequest = fmt.Sprintf("Review issue: %s\nDescription: %s\nAuthor: %s", title, body, login)

	default:
		// Anything else, including actual push events, falls back to
		// kind=push with a diagnostic request so the pipeline still
		// has something to log, even though no built-in command
		// accepts pushes.
		pusher := ""
		if sender, ok := shape["sender"].(map[string]any); ok {
			pusher = userLogin(sender)
		}
		ev.Kind = event.KindPush
		ev.Payload.User = pusher
		ev.UserRequest = fmt.Sprintf("Push event on %s by %s", repo, pusher)
	}

	return ev, nil
}

// Respond creates or edits a comment on the issue/PR the event refers to.
// Push events carry no addressable comment target, so Respond signals
// ErrUnsupportedPhase regardless of phase.
func (g *GitHub) Respond(ctx context.Context, ev event.Event, phase Phase, threadID, message string) (string, error) {
	if ev.Kind == event.KindPush {
		return "", ErrUnsupportedPhase
	}

	owner, name, number, err := issueCoordinates(ev.RawPayload)
	if err != nil {
		return "", err
	}

	if threadID == "" {
		comment, resp, err := g.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
			Body: &message,
		})
		g.checkRate(resp)
		if err != nil {
			return "", fmt.Errorf("github: create comment: %w", err)
		}
		return strconv.FormatInt(comment.GetID(), 10), nil
	}

	id, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("github: malformed thread id %q: %w", threadID, err)
	}

	_, resp, err := g.client.Issues.EditComment(ctx, owner, name, id, &github.IssueComment{Body: &message})
	g.checkRate(resp)
	if err != nil {
		return "", fmt.Errorf("github: edit comment: %w", err)
	}

	return threadID, nil
}

func headerValue(headers map[string][]string, key string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func userLogin(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	login, _ := m["login"].(string)
	return login
}

func repoFullName(shape map[string]any) string {
	repo, ok := shape["repository"].(map[string]any)
	if !ok {
		return ""
	}
	full, _ := repo["full_name"].(string)
	return full
}

// issueCoordinates extracts (owner, repo, number) from the raw payload for
// comment create/edit calls. Works for issue, pull_request, and comment
// event shapes since all three carry an "issue" or equivalent number plus
// a "repository.full_name".
func issueCoordinates(rawBody []byte) (owner, name string, number int, err error) {
	var shape map[string]any
	if err := json.Unmarshal(rawBody, &shape); err != nil {
		return "", "", 0, fmt.Errorf("github: decode payload: %w", err)
	}

	full := repoFullName(shape)
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 {
		return "", "", 0, fmt.Errorf("github: malformed repository name %q", full)
	}
	owner, name = parts[0], parts[1]

	var num float64
	switch {
	case shape["pull_request"] != nil:
		pr, _ := shape["pull_request"].(map[string]any)
		num, _ = pr["number"].(float64)
	case shape["issue"] != nil:
		issue, _ := shape["issue"].(map[string]any)
		num, _ = issue["number"].(float64)
	default:
		num, _ = shape["number"].(float64)
	}

	return owner, name, int(num), nil
}
