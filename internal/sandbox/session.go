package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/repopal/repopal/internal/command"
)

// Result is the outcome of running a command's execution string.
type Result struct {
	ExitCode uint32
	Stdout   string
	Stderr   string
}

// Session is one invocation's acquired resources: a checked-out working
// copy on disk and the image it will run commands in. Every resource
// Open acquires is released by Close, in the reverse of acquisition
// order, regardless of whether Exec ever ran or returned an error — this
// is what gives the pipeline its P1 guarantee.
type Session struct {
	runtime *Runtime
	repo    *Repo
	image   containerd.Image

	acquired []func(context.Context) error
}

// OpenConfig names the repository to clone and the recipe to build the
// image commands run in.
type OpenConfig struct {
	CloneURL    string // e.g. https://github.com/owner/repo.git
	Token       string // passed to go-git as the HTTP basic-auth credential, never logged
	BaseBranch  string
	WorkBranch  string
	Recipe      command.ContainerRecipe
	WorkdirRoot string
}

// nonRootUID is the fixed, unprivileged identity every built command
// container runs as, regardless of what (if any) USER its image
// declares.
const nonRootUID = 65532

// Open clones the repository into a fresh scratch directory and builds
// the disposable image its commands will run in from cfg.Recipe. On any
// failure it unwinds everything it already acquired before returning.
func (r *Runtime) Open(ctx context.Context, cfg OpenConfig) (_ *Session, err error) {
	s := &Session{runtime: r}

	defer func() {
		if err != nil {
			_ = s.Close(ctx)
		}
	}()

	repo, err := cloneRepo(ctx, cfg.WorkdirRoot, cfg.CloneURL, cfg.Token, cfg.BaseBranch, cfg.WorkBranch)
	if err != nil {
		return nil, fmt.Errorf("sandbox: clone repository: %w", err)
	}
	s.repo = repo
	s.acquired = append(s.acquired, func(context.Context) error { return repo.cleanup() })

	tag := buildTag()
	img, err := r.buildImage(ctx, cfg.Recipe, tag)
	if err != nil {
		return nil, err
	}
	s.image = img
	s.acquired = append(s.acquired, func(ctx context.Context) error { return r.removeImage(ctx, tag) })

	return s, nil
}

// RepoDir is the filesystem path of the cloned working copy.
func (s *Session) RepoDir() string { return s.repo.dir }

// Repo exposes the underlying clone for the change extractor and
// publisher, which need its go-git handle and commit/push operations.
func (s *Session) Repo() *Repo { return s.repo }

// Exec runs execString via /bin/sh -c in a fresh container bound to the
// session's working copy at /workspace, waits for it to finish, and
// always deletes the container before returning — a command never
// outlives the single invocation it ran for.
func (s *Session) Exec(ctx context.Context, execString string) (Result, error) {
	ctxNS := s.runtime.ctx(ctx)

	mount := specs.Mount{
		Source:      s.repo.dir,
		Destination: "/workspace",
		Type:        "bind",
		Options:     []string{"rbind"},
	}

	containerID := fmt.Sprintf("repopal-%d", time.Now().UnixNano())
	ctr, err := s.runtime.client.NewContainer(
		ctxNS,
		containerID,
		containerd.WithImage(s.image),
		containerd.WithNewSnapshot(containerID+"-snapshot", s.image),
		containerd.WithNewSpec(
			oci.WithImageConfig(s.image),
			oci.WithProcessCwd("/workspace"),
			oci.WithProcessArgs("/bin/sh", "-c", execString),
			oci.WithMounts([]specs.Mount{mount}),
			// Fixed non-root identity regardless of whether the image
			// declares a USER: WithUserID sets the primary uid/gid (and
			// falls back to uid itself when the rootfs has no matching
			// /etc/passwd entry); WithAdditionalGIDs resolves any
			// supplementary groups /etc/group assigns that same identity.
			oci.WithUserID(nonRootUID),
			oci.WithAdditionalGIDs(fmt.Sprintf("%d", nonRootUID)),
		),
	)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: create container: %w", err)
	}
	defer func() {
		_ = s.runtime.deleteContainer(ctx, containerID)
	}()

	var stdout, stderr bytes.Buffer
	task, err := ctr.NewTask(ctxNS, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: create task: %w", err)
	}
	defer task.Delete(ctxNS)

	statusC, err := task.Wait(ctxNS)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: wait on task: %w", err)
	}

	if err := task.Start(ctxNS); err != nil {
		return Result{}, fmt.Errorf("sandbox: start task: %w", err)
	}

	status := <-statusC
	code, _, err := status.Result()
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: task result: %w", err)
	}

	return Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Close releases everything Open acquired, most-recently-acquired first,
// collecting (rather than stopping at) the first error so every resource
// gets a release attempt.
func (s *Session) Close(ctx context.Context) error {
	var firstErr error
	for i := len(s.acquired) - 1; i >= 0; i-- {
		if err := s.acquired[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.acquired = nil
	return firstErr
}

func (r *Runtime) deleteContainer(ctx context.Context, containerID string) error {
	ctxNS := r.ctx(ctx)
	ctr, err := r.client.LoadContainer(ctxNS, containerID)
	if err != nil {
		return nil
	}
	if task, err := ctr.Task(ctxNS, nil); err == nil {
		_, _ = task.Delete(ctxNS)
	}
	return ctr.Delete(ctxNS, containerd.WithSnapshotCleanup)
}
