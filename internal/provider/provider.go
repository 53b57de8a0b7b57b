// Package provider implements the C1 Provider Adapter: one capability-set
// implementation per supported webhook source, each satisfying {validate,
// normalize, respond} against RepoPal's normalized event.Event.
//
// No inheritance chain is used; each adapter is a small struct holding the
// credentials it needs, selected by provider tag at construction time.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/repopal/repopal/internal/event"
)

// Phase is a response-thread transition. Only Initial may allocate a new
// thread id; Update and Final require the id minted by Initial.
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseUpdate  Phase = "update"
	PhaseFinal   Phase = "final"
)

// Adapter is the capability set every provider implements.
type Adapter interface {
	// Validate reports whether the request is authentic. Implementations
	// must hash/compare the raw bytes actually received — never a
	// re-serialized form.
	Validate(headers map[string][]string, rawBody []byte) bool

	// Normalize performs tagged dispatch on the raw payload and produces
	// a normalized Event. RawPayload on the returned event must equal
	// rawBody byte-for-byte.
	Normalize(rawBody []byte) (event.Event, error)

	// Respond posts or edits a thread message. When threadID is empty a
	// new thread is created and its id returned; otherwise the message is
	// added to that thread (edited in place by the GitHub and Linear
	// adapters, posted as a threaded reply by Slack) and the same id is
	// returned.
	Respond(ctx context.Context, ev event.Event, phase Phase, threadID, message string) (string, error)
}

// ErrUnsupportedPhase is returned by Respond when the provider/event-kind
// combination does not support posting a response (code-host push events).
var ErrUnsupportedPhase = errors.New("provider: phase not supported for this event")

// ErrUnknownShape names a payload shape that matches no recognized dispatch
// branch. None of the shipped adapters returns it: GitHub falls back to
// kind=push, Slack to kind=message, and Linear treats every delivery as an
// issue.
var ErrUnknownShape = errors.New("provider: unrecognized payload shape")

// Registry resolves a provider tag to its configured Adapter. It is built
// once at startup from configuration and never mutated afterward (C2's
// design note on process-wide registries applies equally here).
type Registry struct {
	adapters map[event.Provider]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[event.Provider]Adapter)}
}

func (r *Registry) Register(p event.Provider, a Adapter) {
	r.adapters[p] = a
}

// Lookup resolves a provider path segment from the closed enumeration
// {github, slack, linear}. Unknown segments are the caller's 400 case.
func (r *Registry) Lookup(p event.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnsupportedProvider, p)
	}
	return a, nil
}

var errUnsupportedProvider = errors.New("provider: unsupported provider")

// IsUnsupportedProvider reports whether err was produced by a failed Lookup.
func IsUnsupportedProvider(err error) bool {
	return errors.Is(err, errUnsupportedProvider)
}
