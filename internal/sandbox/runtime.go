// Package sandbox implements the C4 Sandbox Executor: for each pipeline
// invocation it clones the target repository, runs the selected
// command's execution string inside a disposable containerd container
// mounted over that clone, and guarantees both are torn down on every
// exit path.
package sandbox

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
)

// Runtime is a thin wrapper over a containerd client scoped to a single
// namespace, mirroring cuemby-warren's ContainerdRuntime but trimmed to
// the operations RepoPal's pipeline actually needs: build-from-recipe,
// run-to-completion, delete.
type Runtime struct {
	client     *containerd.Client
	namespace  string
	socketPath string
}

// NewRuntime dials the containerd socket and scopes all subsequent calls
// to namespace.
func NewRuntime(socketPath, namespace string) (*Runtime, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("sandbox: connect to containerd at %s: %w", socketPath, err)
	}
	return &Runtime{client: client, namespace: namespace, socketPath: socketPath}, nil
}

// Close releases the containerd client connection.
func (r *Runtime) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Runtime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}
