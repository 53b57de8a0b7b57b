package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/repopal/repopal/internal/changeset"
	"github.com/repopal/repopal/internal/command"
)

// fakeCompletion returns a fixed answer regardless of input, or records
// the last prompt it was given for assertions.
type fakeCompletion struct {
	reply     string
	err       error
	lastSystem string
	lastUser   string
}

func (f *fakeCompletion) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	f.lastSystem = system
	if len(messages) > 0 {
		f.lastUser = messages[len(messages)-1].Content
	}
	return f.reply, f.err
}

func TestSelectCommandPicksNamedCandidate(t *testing.T) {
	candidates := []command.Descriptor{
		{Name: "find_replace", Description: "substitutes text"},
		{Name: "add_file", Description: "creates a file"},
	}
	fc := &fakeCompletion{reply: "<answer>add_file</answer>"}
	p := New(fc)

	got, err := p.SelectCommand(context.Background(), "please add a LICENSE file", candidates)
	if err != nil {
		t.Fatalf("SelectCommand: %v", err)
	}
	if got.Name != "add_file" {
		t.Fatalf("got %q, want add_file", got.Name)
	}
}

func TestSelectCommandNoneAnswerIsNoSuitableCommand(t *testing.T) {
	candidates := []command.Descriptor{{Name: "find_replace"}}
	fc := &fakeCompletion{reply: "<answer>none</answer>"}
	p := New(fc)

	_, err := p.SelectCommand(context.Background(), "do something unrelated", candidates)
	if err != ErrNoSuitableCommand {
		t.Fatalf("got %v, want ErrNoSuitableCommand", err)
	}
}

func TestSelectCommandUnknownNameIsNoSuitableCommand(t *testing.T) {
	candidates := []command.Descriptor{{Name: "find_replace"}}
	fc := &fakeCompletion{reply: "<answer>not_a_real_command</answer>"}
	p := New(fc)

	_, err := p.SelectCommand(context.Background(), "x", candidates)
	if err != ErrNoSuitableCommand {
		t.Fatalf("got %v, want ErrNoSuitableCommand", err)
	}
}

func TestSelectCommandEmptyCandidatesIsNoSuitableCommand(t *testing.T) {
	p := New(&fakeCompletion{reply: "<answer>anything</answer>"})
	if _, err := p.SelectCommand(context.Background(), "x", nil); err != ErrNoSuitableCommand {
		t.Fatalf("got %v, want ErrNoSuitableCommand", err)
	}
}

func TestGenerateArgsParsesJSONAndValidates(t *testing.T) {
	desc := command.Descriptor{
		Name: "add_file",
		Schema: command.Schema{
			{Name: "path", Type: command.ArgString, Required: true},
			{Name: "content", Type: command.ArgString, Required: false, Default: ""},
		},
	}
	fc := &fakeCompletion{reply: `<answer>{"path": "LICENSE"}</answer>`}
	p := New(fc)

	args, err := p.GenerateArgs(context.Background(), "add a LICENSE file", desc)
	if err != nil {
		t.Fatalf("GenerateArgs: %v", err)
	}
	if args["path"] != "LICENSE" {
		t.Fatalf("path = %v, want LICENSE", args["path"])
	}
	if args["content"] != "" {
		t.Fatalf("content default not applied: %v", args["content"])
	}
}

func TestGenerateArgsNonJSONAnswerFallsBackToEmptyMapping(t *testing.T) {
	desc := command.Descriptor{
		Name:   "add_file",
		Schema: command.Schema{{Name: "path", Type: command.ArgString, Required: true}},
	}
	// A Python-dict-style / eval-style answer is never executed as code —
	// it falls back to an empty mapping. path is required, so schema
	// validation is what surfaces the failure here, not the JSON parse.
	fc := &fakeCompletion{reply: `<answer>{'path': 'LICENSE'}</answer>`}
	p := New(fc)

	if _, err := p.GenerateArgs(context.Background(), "x", desc); err == nil {
		t.Fatal("expected schema validation error for missing required path")
	}
}

func TestGenerateArgsNonJSONAnswerSucceedsWhenSchemaIsAllDefaulted(t *testing.T) {
	desc := command.Descriptor{
		Name:   "run_tests",
		Schema: command.Schema{{Name: "working_dir", Type: command.ArgString, Required: false, Default: "."}},
	}
	fc := &fakeCompletion{reply: `not even wrapped in an answer tag`}
	p := New(fc)

	args, err := p.GenerateArgs(context.Background(), "x", desc)
	if err != nil {
		t.Fatalf("expected fallback empty mapping plus defaults to validate cleanly, got %v", err)
	}
	if args["working_dir"] != "." {
		t.Fatalf("working_dir = %v, want default \".\"", args["working_dir"])
	}
}

func TestGenerateArgsRejectsUnknownKey(t *testing.T) {
	desc := command.Descriptor{
		Name:   "add_file",
		Schema: command.Schema{{Name: "path", Type: command.ArgString, Required: true}},
	}
	fc := &fakeCompletion{reply: `<answer>{"path": "x", "rm -rf /": true}</answer>`}
	p := New(fc)

	if _, err := p.GenerateArgs(context.Background(), "x", desc); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSummarizeReturnsExtractedAnswer(t *testing.T) {
	fc := &fakeCompletion{reply: "<answer>Added a LICENSE file as requested.</answer>"}
	p := New(fc)

	out, err := p.Summarize(context.Background(), "add a license", command.Descriptor{Name: "add_file"}, "ok", changeset.ChangeSet{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(out, "LICENSE") {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestStatusMessageFallsBackToRawTextWithoutDelimiter(t *testing.T) {
	fc := &fakeCompletion{reply: "Working on it now."}
	p := New(fc)

	out, err := p.StatusMessage(context.Background(), StatusStarted, "add a license")
	if err != nil {
		t.Fatalf("StatusMessage: %v", err)
	}
	if out != "Working on it now." {
		t.Fatalf("got %q", out)
	}
}
