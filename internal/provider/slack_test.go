package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/repopal/repopal/internal/event"
)

func slackSign(secret, ts string, body []byte) string {
	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackValidate(t *testing.T) {
	sl, err := NewSlack("shhh", "xoxb-token", "")
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}

	body := []byte(`{"type":"event_callback","event":{"type":"message","text":"hi"}}`)

	t.Run("valid signature within window", func(t *testing.T) {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		headers := map[string][]string{
			"X-Slack-Request-Timestamp": {ts},
			"X-Slack-Signature":         {slackSign("shhh", ts, body)},
		}
		if !sl.Validate(headers, body) {
			t.Fatal("expected valid, fresh signature to validate")
		}
	})

	t.Run("replay beyond window rejected", func(t *testing.T) {
		ts := strconv.FormatInt(time.Now().Add(-400*time.Second).Unix(), 10)
		headers := map[string][]string{
			"X-Slack-Request-Timestamp": {ts},
			"X-Slack-Signature":         {slackSign("shhh", ts, body)},
		}
		if sl.Validate(headers, body) {
			t.Fatal("expected stale timestamp to be rejected")
		}
	})

	t.Run("url_verification bypasses signature", func(t *testing.T) {
		challenge := []byte(`{"type":"url_verification","challenge":"abc"}`)
		if !sl.Validate(map[string][]string{}, challenge) {
			t.Fatal("expected url_verification to bypass validation")
		}
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		if sl.Validate(map[string][]string{}, body) {
			t.Fatal("expected missing headers to be rejected")
		}
	})
}

func TestSlackNormalize(t *testing.T) {
	sl, _ := NewSlack("s", "t", "")

	t.Run("slash command", func(t *testing.T) {
		body := `{"command":"/repopal","text":"add a license file","user_name":"erin","channel_id":"C123"}`
		ev, err := sl.Normalize([]byte(body))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if ev.Kind != event.KindSlashCommand {
			t.Fatalf("kind = %s, want %s", ev.Kind, event.KindSlashCommand)
		}
		if ev.ThreadChannel != "C123" {
			t.Fatalf("thread channel = %q, want C123", ev.ThreadChannel)
		}
	})

	t.Run("message event", func(t *testing.T) {
		body := `{"type":"event_callback","event":{"type":"message","text":"hello there","user":"U1","channel":"C9"}}`
		ev, err := sl.Normalize([]byte(body))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if ev.Kind != event.KindMessage {
			t.Fatalf("kind = %s, want %s", ev.Kind, event.KindMessage)
		}
		if ev.ThreadChannel != "C9" {
			t.Fatalf("thread channel = %q, want C9", ev.ThreadChannel)
		}
	})
}
