// Package pipeline implements the C7 Pipeline Orchestrator: the single
// sequence that turns one validated webhook event into a status thread,
// a command invocation, and — if anything changed — a published pull
// request.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/repopal/repopal/internal/command"
	"github.com/repopal/repopal/internal/event"
	"github.com/repopal/repopal/internal/planner"
	"github.com/repopal/repopal/internal/provider"
)

// Orchestrator drives C1→C2→C3→C4→C5→C6→C1 for a single event. It holds
// no per-invocation state between calls to Run; every field here is a
// shared, concurrency-safe collaborator.
type Orchestrator struct {
	Providers *provider.Registry
	Commands  *command.Registry
	Planner   *planner.Planner
	Executor  Executor

	// ResolveEnvironment looks up the clone URL, token, and base branch
	// for the repository an event names. Kept as a function rather than
	// a fixed map so the demo entrypoint can wire it to config while
	// tests supply a fixed value.
	ResolveEnvironment func(ev event.Event) (Environment, error)
}

// Run executes one full invocation. ev must already be the normalized
// output of a validated C1 call — Run does not itself validate
// signatures. The adapter to post thread updates through is resolved
// from ev.Provider.
func (o *Orchestrator) Run(ctx context.Context, ev event.Event) error {
	adapter, err := o.Providers.Lookup(ev.Provider)
	if err != nil {
		return newError(ErrKindUnsupportedProvider, err)
	}

	// Step 2: mint the response thread. This is the only place a new
	// thread id is allocated; every later response on this invocation
	// reuses threadID and the final one is always last.
	startMsg, err := o.Planner.StatusMessage(ctx, planner.StatusStarted, ev.UserRequest)
	if err != nil {
		startMsg = "Working on it."
	}
	threadID, err := adapter.Respond(ctx, ev, provider.PhaseInitial, "", startMsg)
	if err != nil {
		return newError(ErrKindPlannerFailure, fmt.Errorf("open response thread: %w", err))
	}

	return o.run(ctx, adapter, ev, threadID)
}

// run is steps 3–10. Every path out of it — success or failure — ends by
// posting the thread's final response so the last message on the thread
// always explains what happened to the request.
func (o *Orchestrator) run(ctx context.Context, adapter provider.Adapter, ev event.Event, threadID string) error {
	candidates := o.Commands.FilterFor(ev.Kind)
	if len(candidates) == 0 {
		return o.fail(ctx, adapter, ev, threadID, ErrKindNoCommandAvailable, nil,
			planner.StatusNoCommand, "no command available for this event")
	}

	desc, err := o.Planner.SelectCommand(ctx, ev.UserRequest, candidates)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindPlannerFailure, err,
			planner.StatusNoCommand, "no command available for this event")
	}

	args, err := o.Planner.GenerateArgs(ctx, ev.UserRequest, desc)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindPlannerFailure, err,
			planner.StatusFailed, "could not work out how to run this request")
	}

	selectedMsg, err := o.Planner.StatusMessage(ctx, planner.StatusStarted, fmt.Sprintf("running %s", desc.Name))
	if err == nil {
		_, _ = adapter.Respond(ctx, ev, provider.PhaseUpdate, threadID, selectedMsg)
	}

	env, err := o.ResolveEnvironment(ev)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindSandboxFailure, fmt.Errorf("resolve environment: %w", err),
			planner.StatusFailed, "could not determine which repository to operate on")
	}

	workBranch := "repopal/" + uuid.NewString()

	ws, err := o.Executor.Open(ctx, OpenConfig{
		CloneURL:     env.CloneURL,
		RepoFullName: env.RepoFullName,
		Token:        env.Token,
		BaseBranch:   env.baseBranch(),
		WorkBranch:   workBranch,
		Recipe:       desc.Recipe,
	})
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindSandboxFailure, err,
			planner.StatusFailed, "could not prepare a working copy to run the command in")
	}
	// The workspace this Open acquired is released unconditionally, on
	// every path out of this function.
	defer func() {
		if err := ws.Close(ctx); err != nil {
			slog.Error("pipeline: workspace close failed", "error", err)
		}
	}()

	execString, err := desc.ExecutionString(args)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindPlannerFailure, fmt.Errorf("render execution string: %w", err),
			planner.StatusFailed, "could not build the command to run")
	}

	result, err := ws.Exec(ctx, execString)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindSandboxFailure, err,
			planner.StatusFailed, "running the command failed")
	}

	changes, err := ws.ExtractChanges()
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindSandboxFailure, fmt.Errorf("extract changes: %w", err),
			planner.StatusFailed, "could not determine what the command changed")
	}

	if result.ExitCode != 0 {
		return o.fail(ctx, adapter, ev, threadID, ErrKindCommandFailure, nil,
			planner.StatusFailed, fmt.Sprintf("command %q exited with code %d:\n%s", desc.Name, result.ExitCode, result.Stderr))
	}

	if changes.Empty() {
		return o.respondFinal(ctx, adapter, ev, threadID, nil, planner.StatusCompleted,
			"the command ran successfully but made no changes")
	}

	summary, err := o.Planner.Summarize(ctx, ev.UserRequest, desc, result.Stdout, changes)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindPlannerFailure, err,
			planner.StatusFailed, "the command succeeded but the result could not be summarized")
	}

	pub, err := ws.Publish(ctx, changes, desc.Name+": "+summary, summary)
	if err != nil {
		return o.fail(ctx, adapter, ev, threadID, ErrKindPublishFailure, err,
			planner.StatusFailed, "the change could not be published")
	}

	// The PR reference is appended to whatever status text the planner
	// produces, so the final message always names the pull request.
	msg, err := o.Planner.StatusMessage(ctx, planner.StatusPublished, summary)
	if err != nil {
		msg = summary
	}
	if _, err := adapter.Respond(ctx, ev, provider.PhaseFinal, threadID, summaryWithPR(msg, pub.URL)); err != nil {
		slog.Error("pipeline: final response failed", "error", err, "thread_id", threadID)
	}
	return nil
}

func summaryWithPR(summary, url string) string {
	return fmt.Sprintf("%s\n\nOpened: %s", summary, url)
}

// fail posts the final thread response describing the failure and returns
// a classified *Error wrapping cause.
func (o *Orchestrator) fail(ctx context.Context, adapter provider.Adapter, ev event.Event, threadID string, kind ErrKind, cause error, status planner.Status, detail string) error {
	_ = o.respondFinal(ctx, adapter, ev, threadID, nil, status, detail)
	return newError(kind, cause)
}

// respondFinal posts the closing thread update and returns origErr (which
// may be nil for a successful completion) unchanged, so callers can
// return its result directly.
func (o *Orchestrator) respondFinal(ctx context.Context, adapter provider.Adapter, ev event.Event, threadID string, origErr error, status planner.Status, detail string) error {
	msg, err := o.Planner.StatusMessage(ctx, status, detail)
	if err != nil {
		msg = detail
	}
	if _, err := adapter.Respond(ctx, ev, provider.PhaseFinal, threadID, msg); err != nil {
		slog.Error("pipeline: final response failed", "error", err, "thread_id", threadID)
	}
	return origErr
}
