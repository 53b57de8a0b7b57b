package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/worldline-go/klient"

	"github.com/repopal/repopal/internal/event"
)

// replayWindow bounds how old a Slack request timestamp may be before
// validation rejects it as a possible replay.
const replayWindow = 300 * time.Second

// Slack implements Adapter for Slack's timestamped-HMAC webhook scheme and
// posts responses via chat.postMessage.
type Slack struct {
	secret string
	client *klient.Client
}

func NewSlack(secret, token, baseURL string) (*Slack, error) {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}

	client, err := klient.New(
		klient.WithBaseURL(baseURL),
		klient.WithHeaderSet(http.Header{
			"Authorization": []string{"Bearer " + token},
			"Content-Type":  []string{"application/json; charset=utf-8"},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("slack: construct client: %w", err)
	}

	return &Slack{secret: secret, client: client}, nil
}

// Validate implements the v0 timestamped signing scheme: reject if the
// timestamp is outside the replay window, otherwise compare
// "v0=" + hmac-sha256(secret, "v0:{timestamp}:{raw_body}"). A
// url_verification challenge short-circuits to true regardless of
// signature, matching Slack's handshake flow.
func (s *Slack) Validate(headers map[string][]string, rawBody []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(rawBody, &probe) == nil && probe.Type == "url_verification" {
		return true
	}

	ts := headerValue(headers, "X-Slack-Request-Timestamp")
	sig := headerValue(headers, "X-Slack-Signature")
	if ts == "" || sig == "" {
		return false
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(time.Since(time.Unix(tsInt, 0)).Seconds()) > replayWindow.Seconds() {
		return false
	}

	const prefix = "v0="
	if !strings.HasPrefix(sig, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(sig, prefix))
	if err != nil {
		return false
	}

	base := "v0:" + ts + ":" + string(rawBody)
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(base))
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}

// Normalize dispatches on the presence of a "command" field (slash
// command) versus an event_callback/message shape.
func (s *Slack) Normalize(rawBody []byte) (event.Event, error) {
	var shape map[string]any
	if err := json.Unmarshal(rawBody, &shape); err != nil {
		return event.Event{}, fmt.Errorf("slack: decode payload: %w", err)
	}

	ev := event.Event{
		Provider:   event.ProviderSlack,
		RawPayload: rawBody,
	}

	if cmd, ok := shape["command"].(string); ok && cmd != "" {
		text, _ := shape["text"].(string)
		userName, _ := shape["user_name"].(string)
		channel, _ := shape["channel_id"].(string)

		ev.Kind = event.KindSlashCommand
		ev.Payload.Title = cmd
		ev.Payload.Description = text
		ev.Payload.User = userName
		ev.ThreadChannel = channel
		ev.UserRequest = fmt.Sprintf("Slash command %s: %s\nAuthor: %s", cmd, text, userName)
		return ev, nil
	}

	// event_callback wraps the actual event under "event"; a bare
	// "message" shape may also appear directly at the top level
	// depending on the Events API subscription.
	inner, _ := shape["event"].(map[string]any)
	if inner == nil {
		inner = shape
	}

	text, _ := inner["text"].(string)
	userID, _ := inner["user"].(string)
	channel, _ := inner["channel"].(string)

	ev.Kind = event.KindMessage
	ev.Payload.Description = text
	ev.Payload.User = userID
	ev.ThreadChannel = channel
	ev.UserRequest = fmt.Sprintf("Message: %s\nAuthor: %s", text, userID)

	return ev, nil
}

type slackPostMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type slackPostMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// Respond posts (threadID empty) or replies into (threadID set) a message
// in the event's channel, returning the message timestamp as the thread
// id, matching the provider's own notion of a thread key.
func (s *Slack) Respond(ctx context.Context, ev event.Event, phase Phase, threadID, message string) (string, error) {
	reqBody := slackPostMessageRequest{
		Channel:  ev.ThreadChannel,
		Text:     message,
		ThreadTS: threadID,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("slack: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/chat.postMessage", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("slack: build request: %w", err)
	}

	var result slackPostMessageResponse
	if err := s.client.Do(req, func(r *http.Response) error {
		return json.NewDecoder(r.Body).Decode(&result)
	}); err != nil {
		return "", fmt.Errorf("slack: chat.postMessage: %w", err)
	}

	if !result.OK {
		return "", fmt.Errorf("slack: chat.postMessage rejected: %s", result.Error)
	}

	if threadID == "" {
		return result.TS, nil
	}
	return threadID, nil
}
