package command

import (
	"testing"

	"github.com/repopal/repopal/internal/event"
)

func testDescriptor(name string, accepts func(event.Kind) bool) Descriptor {
	return Descriptor{
		Name:            name,
		Description:     "test command " + name,
		ExecutionString: func(args map[string]any) (string, error) { return "true", nil },
		Accepts:         accepts,
	}
}

func TestRegistryFilterForOrderIsRegistrationOrder(t *testing.T) {
	always := func(event.Kind) bool { return true }
	never := func(event.Kind) bool { return false }

	r := NewRegistryFrom([]Descriptor{
		testDescriptor("first", always),
		testDescriptor("second", never),
		testDescriptor("third", always),
	})

	got := r.FilterFor(event.KindIssue)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Name != "first" || got[1].Name != "third" {
		t.Fatalf("unexpected order: %v", []string{got[0].Name, got[1].Name})
	}
}

func TestRegistryLookupUnknownCommand(t *testing.T) {
	r := NewRegistryFrom(nil)
	if _, err := r.Lookup("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

// Immutability: repeated calls with identical inputs return identical
// results.
func TestRegistryImmutableAfterConstruction(t *testing.T) {
	r := NewRegistryFrom([]Descriptor{testDescriptor("only", func(event.Kind) bool { return true })})

	first := r.FilterFor(event.KindIssue)
	second := r.FilterFor(event.KindIssue)
	if len(first) != len(second) || first[0].Name != second[0].Name {
		t.Fatal("FilterFor is not stable across repeated calls")
	}
}
