package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/images"

	"github.com/repopal/repopal/internal/command"
)

// buildImage builds an OCI image from a command's container recipe in a
// disposable build context directory, removed unconditionally before
// this function returns either way. The recipe's Dockerfile is validated
// up front so a malformed recipe fails before any build tool runs.
//
// There is no buildkit-client dependency anywhere in the corpus this
// project is grounded on, so the build itself is delegated to nerdctl —
// containerd's own CLI — invoked against this Runtime's socket and
// namespace. nerdctl's build path goes through buildkit but writes the
// finished image straight into containerd's content and image store, so
// the result comes back out through the same client.GetImage call used
// for a pulled image; no separate image-store handoff is needed.
func (r *Runtime) buildImage(ctx context.Context, recipe command.ContainerRecipe, tag string) (containerd.Image, error) {
	if _, err := baseImage(recipe.Dockerfile); err != nil {
		return nil, fmt.Errorf("sandbox: invalid recipe: %w", err)
	}

	buildDir, err := os.MkdirTemp("", "repopal-build-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create build context: %w", err)
	}
	defer os.RemoveAll(buildDir)

	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(recipe.Dockerfile), 0o644); err != nil {
		return nil, fmt.Errorf("sandbox: write Dockerfile: %w", err)
	}
	for name, content := range recipe.ContextFile {
		path := filepath.Join(buildDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sandbox: create build context entry %s: %w", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, fmt.Errorf("sandbox: write build context file %s: %w", name, err)
		}
	}

	cmd := exec.CommandContext(ctx, "nerdctl",
		"--namespace", r.namespace,
		"--address", r.socketPath,
		"build",
		"--tag", tag,
		buildDir,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sandbox: build-environment error: %w: %s", err, stderr.String())
	}

	img, err := r.client.GetImage(r.ctx(ctx), tag)
	if err != nil {
		return nil, fmt.Errorf("sandbox: retrieve built image %s: %w", tag, err)
	}
	return img, nil
}

// buildTag derives a unique, disposable tag for a single invocation's
// build, following the same unique-per-invocation naming the container
// id itself uses.
func buildTag() string {
	return fmt.Sprintf("repopal.local/build-%d:latest", time.Now().UnixNano())
}

// removeImage deletes a built image's record from containerd's image
// store, along with its content if nothing else references it. Called
// unconditionally on Close so build artifacts never outlive the
// invocation that produced them, on success or on failure.
func (r *Runtime) removeImage(ctx context.Context, tag string) error {
	if err := r.client.ImageService().Delete(r.ctx(ctx), tag, images.SynchronousDelete()); err != nil {
		return fmt.Errorf("sandbox: remove built image %s: %w", tag, err)
	}
	return nil
}
