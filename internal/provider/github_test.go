package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/repopal/repopal/internal/event"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGitHubValidate(t *testing.T) {
	gh, err := NewGitHub(nil, "topsecret", "", "")
	if err != nil {
		t.Fatalf("NewGitHub: %v", err)
	}

	body := []byte(`{"action":"opened"}`)

	t.Run("valid signature", func(t *testing.T) {
		headers := map[string][]string{"X-Hub-Signature-256": {sign("topsecret", body)}}
		if !gh.Validate(headers, body) {
			t.Fatal("expected valid signature to validate")
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		headers := map[string][]string{"X-Hub-Signature-256": {sign("wrongsecret", body)}}
		if gh.Validate(headers, body) {
			t.Fatal("expected tampered signature to be rejected")
		}
	})

	t.Run("reserialized body does not validate against original signature", func(t *testing.T) {
		// Hashing a re-serialized form of an equivalent payload must
		// not match the signature computed over the original bytes.
		reserialized := []byte(`{"action": "opened"}`) // different whitespace
		headers := map[string][]string{"X-Hub-Signature-256": {sign("topsecret", body)}}
		if gh.Validate(headers, reserialized) {
			t.Fatal("expected reserialized body to fail validation against the original signature")
		}
	})

	t.Run("missing signature header", func(t *testing.T) {
		if gh.Validate(map[string][]string{}, body) {
			t.Fatal("expected missing signature to be rejected")
		}
	})
}

func TestGitHubNormalize(t *testing.T) {
	gh, _ := NewGitHub(nil, "s", "", "")

	cases := []struct {
		name       string
		body       string
		wantKind   event.Kind
		wantInText string
	}{
		{
			name:       "pull request",
			body:       `{"action":"opened","pull_request":{"title":"Add feature","body":"does a thing","user":{"login":"alice"},"number":5},"repository":{"full_name":"acme/repo"}}`,
			wantKind:   event.KindPullRequest,
			wantInText: "Review pull request: Add feature",
		},
		{
			name:       "issue comment",
			body:       `{"action":"created","comment":{"body":"please fix","user":{"login":"bob"}},"issue":{"number":2},"repository":{"full_name":"acme/repo"}}`,
			wantKind:   event.KindComment,
			wantInText: "Comment on issue: please fix",
		},
		{
			name:       "issue",
			body:       `{"action":"opened","issue":{"title":"Update greeting","body":"replace world with everyone","user":{"login":"carol"},"number":9},"repository":{"full_name":"acme/repo"}}`,
			wantKind:   event.KindIssue,
			wantInText: "Review issue: Update greeting",
		},
		{
			name:       "push fallback",
			body:       `{"ref":"refs/heads/main","sender":{"login":"dave"},"repository":{"full_name":"acme/repo"}}`,
			wantKind:   event.KindPush,
			wantInText: "Push event on acme/repo",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := gh.Normalize([]byte(tc.body))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if ev.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", ev.Kind, tc.wantKind)
			}
			if string(ev.RawPayload) != tc.body {
				t.Fatalf("raw payload not preserved verbatim: got %q want %q", ev.RawPayload, tc.body)
			}
			if !contains(ev.UserRequest, tc.wantInText) {
				t.Fatalf("user_request = %q, want substring %q", ev.UserRequest, tc.wantInText)
			}
		})
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
