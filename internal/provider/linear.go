package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/worldline-go/klient"

	"github.com/repopal/repopal/internal/event"
)

// Linear implements Adapter for Linear's tracker webhooks. Linear signs
// webhooks the same way GitHub does (sha256=<hex hmac> over the verbatim
// body), and responds to requests by posting a comment on the issue via
// Linear's GraphQL API.
type Linear struct {
	secret string
	client *klient.Client
}

func NewLinear(secret, token, baseURL string) (*Linear, error) {
	if baseURL == "" {
		baseURL = "https://api.linear.app"
	}

	client, err := klient.New(
		klient.WithBaseURL(baseURL),
		klient.WithHeaderSet(http.Header{
			"Authorization": []string{token},
			"Content-Type":  []string{"application/json"},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("linear: construct client: %w", err)
	}

	return &Linear{secret: secret, client: client}, nil
}

func (l *Linear) Validate(headers map[string][]string, rawBody []byte) bool {
	sig := headerValue(headers, "Linear-Signature")
	if sig == "" {
		sig = headerValue(headers, "X-Hub-Signature-256")
	}
	if sig == "" {
		return false
	}

	sig = strings.TrimPrefix(sig, "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(l.secret))
	mac.Write(rawBody)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}

// Normalize treats every Linear webhook delivery as a tracker issue event;
// Linear's webhook payloads carry a "data" object shaped like an issue
// regardless of the action (create/update/remove), and an "action" field
// used as the event's action qualifier.
func (l *Linear) Normalize(rawBody []byte) (event.Event, error) {
	var shape struct {
		Action string `json:"action"`
		Data   struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Creator     struct {
				Name string `json:"name"`
			} `json:"creator"`
			Team struct {
				Name string `json:"name"`
			} `json:"team"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &shape); err != nil {
		return event.Event{}, fmt.Errorf("linear: decode payload: %w", err)
	}

	ev := event.Event{
		Provider:   event.ProviderLinear,
		Kind:       event.KindIssue,
		Action:     shape.Action,
		RawPayload: rawBody,
	}
	ev.Payload.Title = shape.Data.Title
	ev.Payload.Description = shape.Data.Description
	ev.Payload.User = shape.Data.Creator.Name
	ev.Payload.Repository = shape.Data.Team.Name
	ev.Payload.URL = shape.Data.URL
	ev.ThreadChannel = shape.Data.ID
	ev.UserRequest = fmt.Sprintf("Review issue: %s\nDescription: %s\nAuthor: %s", shape.Data.Title, shape.Data.Description, shape.Data.Creator.Name)

	return ev, nil
}

const (
	linearCreateCommentMutation = `mutation($issueId: String!, $body: String!) {
  commentCreate(input: {issueId: $issueId, body: $body}) {
    success
    comment { id }
  }
}`
	linearUpdateCommentMutation = `mutation($commentId: String!, $body: String!) {
  commentUpdate(id: $commentId, input: {body: $body}) {
    success
  }
}`
)

type linearGraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type linearCommentCreateResponse struct {
	Data struct {
		CommentCreate struct {
			Success bool `json:"success"`
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"commentCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Respond creates (threadID empty) or updates (threadID set) a comment on
// the issue identified by ThreadChannel (carrying the Linear issue id).
func (l *Linear) Respond(ctx context.Context, ev event.Event, phase Phase, threadID, message string) (string, error) {
	if threadID == "" {
		reqBody := linearGraphQLRequest{
			Query: linearCreateCommentMutation,
			Variables: map[string]any{
				"issueId": ev.ThreadChannel,
				"body":    message,
			},
		}
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("linear: encode request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/graphql", strings.NewReader(string(jsonBody)))
		if err != nil {
			return "", fmt.Errorf("linear: build request: %w", err)
		}

		var result linearCommentCreateResponse
		if err := l.client.Do(req, func(r *http.Response) error {
			return json.NewDecoder(r.Body).Decode(&result)
		}); err != nil {
			return "", fmt.Errorf("linear: commentCreate: %w", err)
		}
		if len(result.Errors) > 0 {
			return "", fmt.Errorf("linear: commentCreate rejected: %s", result.Errors[0].Message)
		}
		if !result.Data.CommentCreate.Success {
			return "", fmt.Errorf("linear: commentCreate did not succeed")
		}
		return result.Data.CommentCreate.Comment.ID, nil
	}

	reqBody := linearGraphQLRequest{
		Query: linearUpdateCommentMutation,
		Variables: map[string]any{
			"commentId": threadID,
			"body":      message,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("linear: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/graphql", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("linear: build request: %w", err)
	}

	if err := l.client.Do(req, func(r *http.Response) error {
		return nil
	}); err != nil {
		return "", fmt.Errorf("linear: commentUpdate: %w", err)
	}

	return threadID, nil
}
