package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/repopal/repopal/internal/changeset"
	"github.com/repopal/repopal/internal/command"
)

// Planner drives the four LLM-backed decisions in the pipeline: which
// command to run, what arguments to run it with, how to summarize the
// result, and what status text to post back to the user.
type Planner struct {
	completion Completion
}

// New builds a Planner over the given completion backend.
func New(completion Completion) *Planner {
	return &Planner{completion: completion}
}

// ErrNoSuitableCommand is returned by SelectCommand when the model's
// answer names no candidate, or names one that isn't in the candidate
// list it was given — the caller should fall back to the
// no-command-available response path rather than guess.
var ErrNoSuitableCommand = fmt.Errorf("planner: no suitable command")

const selectCommandSystemPrompt = `You are RepoPal, an assistant that turns a repository event into a single command invocation.
You will be given a user request and a list of available commands with their descriptions.
Reply with the name of the single best command to run, wrapped exactly as <answer>command_name</answer>.
If none of the commands genuinely apply, reply with <answer>none</answer>.
Do not invent a command name that is not in the list.`

// SelectCommand asks the model to pick exactly one command out of
// candidates for the given request. Command composition is out of
// scope, so this always returns at most one descriptor.
func (p *Planner) SelectCommand(ctx context.Context, userRequest string, candidates []command.Descriptor) (command.Descriptor, error) {
	if len(candidates) == 0 {
		return command.Descriptor{}, ErrNoSuitableCommand
	}

	var listing strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&listing, "- %s: %s\n", c.Name, c.Description)
	}

	prompt := fmt.Sprintf("User request:\n%s\n\nAvailable commands:\n%s", userRequest, listing.String())

	raw, err := p.completion.Complete(ctx, selectCommandSystemPrompt, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return command.Descriptor{}, fmt.Errorf("select_command: %w", err)
	}

	chosen := strings.TrimSpace(extractAnswer(raw))
	if chosen == "" || strings.EqualFold(chosen, "none") {
		return command.Descriptor{}, ErrNoSuitableCommand
	}

	for _, c := range candidates {
		if c.Name == chosen {
			return c, nil
		}
	}
	return command.Descriptor{}, ErrNoSuitableCommand
}

const generateArgsSystemPrompt = `You are RepoPal, an assistant that fills in the arguments for a repository command.
You will be given the user's request and the command's documentation, including its argument schema.
Reply with a single line of valid JSON mapping argument names to values, wrapped exactly as <answer>{"name":"value"}</answer>.
Only include keys that the schema defines. Do not explain your reasoning.`

// GenerateArgs asks the model to produce the argument map for the given
// command, then validates and coerces it against the command's schema.
//
// The model is asked for plain JSON and the response is parsed with
// encoding/json — never evaluated as code.
func (p *Planner) GenerateArgs(ctx context.Context, userRequest string, desc command.Descriptor) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"User request:\n%s\n\nCommand: %s\n%s\n\nDocumentation:\n%s",
		userRequest, desc.Name, desc.Description, desc.Documentation,
	)

	raw, err := p.completion.Complete(ctx, generateArgsSystemPrompt, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("generate_args: %w", err)
	}

	answer := extractAnswer(raw)

	var args map[string]any
	if err := json.Unmarshal([]byte(answer), &args); err != nil {
		args = map[string]any{}
	}

	validated, err := desc.Schema.Validate(args)
	if err != nil {
		return nil, fmt.Errorf("generate_args: %w", err)
	}
	return validated, nil
}

const summarizeSystemPrompt = `You are RepoPal, an assistant that explains a completed repository change to the user who requested it.
You will be given the user's original request, the command that ran, its output, and a description of the files it changed.
Reply with two to four sentences of plain prose describing what changed and why, wrapped exactly as <answer>...</answer>.
Do not include markdown headers or code fences.`

// Summarize produces the natural-language description of a completed
// change, used as the commit message body and the final response text.
func (p *Planner) Summarize(ctx context.Context, userRequest string, desc command.Descriptor, commandOutput string, changes changeset.ChangeSet) (string, error) {
	var files strings.Builder
	for _, c := range changes.Tracked {
		fmt.Fprintf(&files, "\nModified %s:\n%s", c.Path, c.UnifiedDiff)
	}
	for _, f := range changes.Untracked {
		if f.Binary {
			fmt.Fprintf(&files, "\nNew binary file %s\n", f.Path)
			continue
		}
		fmt.Fprintf(&files, "\nNew file %s:\n%s\n", f.Path, f.Content)
	}

	prompt := fmt.Sprintf(
		"User request:\n%s\n\nCommand run: %s\n\nCommand output:\n%s\n\nFiles changed: %d tracked, %d new\n%s",
		userRequest, desc.Name, commandOutput, len(changes.Tracked), len(changes.Untracked), files.String(),
	)

	raw, err := p.completion.Complete(ctx, summarizeSystemPrompt, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return extractAnswer(raw), nil
}

const statusMessageSystemPrompt = `You are RepoPal, an assistant posting a short status update back to the user in the thread they opened.
Reply with one friendly sentence appropriate to the given situation. Do not use markdown or wrap the reply in any delimiter.`

// Status is the situation StatusMessage is asked to narrate.
type Status int

const (
	StatusStarted Status = iota
	StatusNoCommand
	StatusPublished
	StatusFailed
	StatusCompleted
)

// StatusMessage produces the short acknowledgement/progress/failure text
// posted at each update and final response during a pipeline run.
func (p *Planner) StatusMessage(ctx context.Context, status Status, detail string) (string, error) {
	var situation string
	switch status {
	case StatusStarted:
		situation = "Work has just started on the user's request: " + detail
	case StatusNoCommand:
		situation = "No available command could handle this request: " + detail
	case StatusPublished:
		situation = "The change was published successfully: " + detail
	case StatusFailed:
		situation = "The attempt failed with this error: " + detail
	case StatusCompleted:
		situation = "The command completed: " + detail
	}

	text, err := p.completion.Complete(ctx, statusMessageSystemPrompt, []Message{{Role: "user", Content: situation}})
	if err != nil {
		return "", fmt.Errorf("status_message: %w", err)
	}
	return extractAnswer(text), nil
}
