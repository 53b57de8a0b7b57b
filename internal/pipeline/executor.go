package pipeline

import (
	"context"
	"fmt"

	"github.com/repopal/repopal/internal/changeset"
	"github.com/repopal/repopal/internal/command"
	"github.com/repopal/repopal/internal/publisher"
	"github.com/repopal/repopal/internal/sandbox"
)

// OpenConfig is everything the executor needs to acquire a working copy
// and the image a command will run in.
type OpenConfig struct {
	CloneURL     string
	RepoFullName string
	Token        string
	BaseBranch   string
	WorkBranch   string
	Recipe       command.ContainerRecipe
}

// Workspace is the generic per-invocation handle the orchestrator drives
// through C4→C5→C6, extended with the change-extraction and publish
// steps that operate on the same acquired working copy. The containerd-backed
// production implementation is sandboxWorkspace; tests substitute a fake.
type Workspace interface {
	Exec(ctx context.Context, execString string) (sandbox.Result, error)
	ExtractChanges() (changeset.ChangeSet, error)
	Publish(ctx context.Context, changes changeset.ChangeSet, title, summary string) (publisher.Publication, error)
	Close(ctx context.Context) error
}

// Executor acquires a Workspace. The production implementation clones a
// repository and builds the command's image via internal/sandbox; the generic
// interface is what lets tests drive the orchestrator without a real
// containerd socket or network access.
type Executor interface {
	Open(ctx context.Context, cfg OpenConfig) (Workspace, error)
}

// SandboxExecutor is the containerd-backed Executor used in production.
type SandboxExecutor struct {
	runtime     *sandbox.Runtime
	publisher   *publisher.Publisher
	workdirRoot string
}

// NewSandboxExecutor wires a containerd-backed executor over the given
// runtime and publisher.
func NewSandboxExecutor(runtime *sandbox.Runtime, pub *publisher.Publisher, workdirRoot string) *SandboxExecutor {
	return &SandboxExecutor{runtime: runtime, publisher: pub, workdirRoot: workdirRoot}
}

func (e *SandboxExecutor) Open(ctx context.Context, cfg OpenConfig) (Workspace, error) {
	sess, err := e.runtime.Open(ctx, sandbox.OpenConfig{
		CloneURL:    cfg.CloneURL,
		Token:       cfg.Token,
		BaseBranch:  cfg.BaseBranch,
		WorkBranch:  cfg.WorkBranch,
		Recipe:      cfg.Recipe,
		WorkdirRoot: e.workdirRoot,
	})
	if err != nil {
		return nil, err
	}
	return &sandboxWorkspace{
		sess:         sess,
		publisher:    e.publisher,
		repoFullName: cfg.RepoFullName,
		baseBranch:   cfg.BaseBranch,
		workBranch:   cfg.WorkBranch,
	}, nil
}

type sandboxWorkspace struct {
	sess         *sandbox.Session
	publisher    *publisher.Publisher
	repoFullName string
	baseBranch   string
	workBranch   string
}

func (w *sandboxWorkspace) Exec(ctx context.Context, execString string) (sandbox.Result, error) {
	return w.sess.Exec(ctx, execString)
}

func (w *sandboxWorkspace) ExtractChanges() (changeset.ChangeSet, error) {
	return changeset.Extract(w.sess)
}

func (w *sandboxWorkspace) Publish(ctx context.Context, changes changeset.ChangeSet, title, summary string) (publisher.Publication, error) {
	pub, err := w.publisher.Publish(ctx, w.sess, changes, w.repoFullName, w.baseBranch, w.workBranch, title, summary)
	if err != nil {
		return publisher.Publication{}, fmt.Errorf("workspace: publish: %w", err)
	}
	return pub, nil
}

func (w *sandboxWorkspace) Close(ctx context.Context) error {
	return w.sess.Close(ctx)
}
