package publisher

import (
	"context"
	"net/http"
	"testing"

	"github.com/repopal/repopal/internal/changeset"
)

func TestPublishRejectsEmptyChangeSet(t *testing.T) {
	p, err := New(http.DefaultClient, "token", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Publish(context.Background(), nil, changeset.ChangeSet{}, "owner/repo", "main", "repopal/x", "title", "body")
	if err != ErrNoChanges {
		t.Fatalf("got %v, want ErrNoChanges", err)
	}
}

func TestSplitRepoRejectsMalformedName(t *testing.T) {
	if _, _, err := splitRepo("not-a-valid-repo-name"); err == nil {
		t.Fatal("expected error for malformed repo name")
	}
}

func TestSplitRepoAcceptsOwnerSlashName(t *testing.T) {
	owner, name, err := splitRepo("acme/widgets")
	if err != nil {
		t.Fatalf("splitRepo: %v", err)
	}
	if owner != "acme" || name != "widgets" {
		t.Fatalf("got %q/%q, want acme/widgets", owner, name)
	}
}

