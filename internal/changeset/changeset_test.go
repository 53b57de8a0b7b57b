package changeset

import "testing"

func TestChangeSetEmpty(t *testing.T) {
	if !(ChangeSet{}).Empty() {
		t.Fatal("zero-value ChangeSet should be empty")
	}
	if (ChangeSet{Tracked: []TrackedChange{{Path: "a"}}}).Empty() {
		t.Fatal("change set with a tracked change should not be empty")
	}
	if (ChangeSet{Untracked: []UntrackedFile{{Path: "a"}}}).Empty() {
		t.Fatal("change set with an untracked file should not be empty")
	}
}

func TestUnifiedDiffMarksAddedAndRemovedLines(t *testing.T) {
	diff := unifiedDiff("main.go", "line one\nline two\n", "line one\nline three\n")

	if !contains(diff, "-line two") {
		t.Fatalf("expected removed line marker in diff:\n%s", diff)
	}
	if !contains(diff, "+line three") {
		t.Fatalf("expected added line marker in diff:\n%s", diff)
	}
	if !contains(diff, " line one") {
		t.Fatalf("expected unchanged line preserved in diff:\n%s", diff)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
