package command

import (
	"fmt"
	"sync"

	"github.com/repopal/repopal/internal/event"
)

// registry is the process-wide table, built once by init() calls from the
// builtins subpackage: a package-level map populated from side-effecting
// imports, read many times, never mutated after startup.
var (
	registryMu    sync.Mutex
	descriptors   = map[string]Descriptor{}
	registerOrder []string
)

// Register adds a descriptor to the process-wide table. It must only be
// called from package init() functions, before any HTTP traffic is
// accepted; it is not part of the steady-state read path and therefore
// does not need to be fast.
func Register(d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := descriptors[d.Name]; exists {
		panic(fmt.Sprintf("command: duplicate registration for %q", d.Name))
	}
	descriptors[d.Name] = d
	registerOrder = append(registerOrder, d.Name)
}

// Registry is a read-only view over the process-wide table, captured at
// construction time so that a test can build an isolated registry without
// mutating global state.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string
}

// NewRegistry snapshots the current process-wide table. Call this once
// after all builtins/* packages have registered via their init()
// functions (i.e. after main's imports have run).
func NewRegistry() *Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	snapshot := make(map[string]Descriptor, len(descriptors))
	for k, v := range descriptors {
		snapshot[k] = v
	}
	order := make([]string, len(registerOrder))
	copy(order, registerOrder)

	return &Registry{descriptors: snapshot, order: order}
}

// NewRegistryFrom builds a Registry from an explicit descriptor list,
// useful for tests that want a controlled candidate set without relying
// on global init() registration.
func NewRegistryFrom(ds []Descriptor) *Registry {
	r := &Registry{descriptors: make(map[string]Descriptor, len(ds))}
	for _, d := range ds {
		r.descriptors[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r
}

// FilterFor returns descriptors whose Accepts predicate matches kind, in
// registration order — this order becomes the tie-break the planner's
// select_command prompt relies on for equally-scored candidates.
func (r *Registry) FilterFor(kind event.Kind) []Descriptor {
	var out []Descriptor
	for _, name := range r.order {
		d := r.descriptors[name]
		if d.Accepts != nil && d.Accepts(kind) {
			out = append(out, d)
		}
	}
	return out
}

// ErrUnknownCommand is returned by Lookup when name is not in the table —
// the case where the LLM planner returned a name outside the candidate
// set it was given.
var ErrUnknownCommand = fmt.Errorf("command: unknown command")

func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return d, nil
}
