package sandbox

import (
	"context"
	"errors"
	"testing"
)

// Close releases resources in the reverse of acquisition order, and
// keeps releasing the rest even when an earlier release fails.
func TestSessionCloseReleasesInReverseOrderAndCollectsErrors(t *testing.T) {
	var released []string

	s := &Session{}
	s.acquired = []func(context.Context) error{
		func(context.Context) error { released = append(released, "repo"); return nil },
		func(context.Context) error { released = append(released, "container"); return errors.New("boom") },
	}

	err := s.Close(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Fatalf("got err %v, want boom", err)
	}

	want := []string{"container", "repo"}
	if len(released) != len(want) || released[0] != want[0] || released[1] != want[1] {
		t.Fatalf("released = %v, want %v", released, want)
	}
}

func TestSessionCloseIsSafeWithNothingAcquired(t *testing.T) {
	s := &Session{}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close on empty session: %v", err)
	}
}
