// Package builtins registers RepoPal's shipped command descriptors at
// import time using the same init()-registration idiom as the rest of
// this codebase's process-wide tables.
package builtins

import (
	"fmt"

	"github.com/repopal/repopal/internal/command"
	"github.com/repopal/repopal/internal/event"
	"github.com/repopal/repopal/internal/render"
)

func init() {
	command.Register(command.Descriptor{
		Name:        "find_replace",
		Description: "Perform find and replace across files",
		Documentation: "Replaces every occurrence of find_pattern with replace_text in files " +
			"matching file_pattern (a shell glob, default '*'). Patterns are passed " +
			"through sed's substitution syntax and must not themselves contain an " +
			"unescaped '/'.",
		Schema: command.Schema{
			{Name: "find_pattern", Type: command.ArgString, Required: true},
			{Name: "replace_text", Type: command.ArgString, Required: true},
			{Name: "file_pattern", Type: command.ArgString, Required: false, Default: "*"},
		},
		Recipe: command.ContainerRecipe{
			Dockerfile: "FROM debian:bookworm-slim\n" +
				"WORKDIR /workspace\n" +
				"RUN apt-get update && apt-get install -y --no-install-recommends findutils sed && rm -rf /var/lib/apt/lists/*\n",
		},
		ExecutionString: findReplaceExecutionString,
		Accepts:          acceptsTextEditableEvents,
	})
}

const findReplaceTemplate = `find . -type f -name '{{.file_pattern}}' -exec sed -i 's/{{.find_pattern}}/{{.replace_text}}/g' {} +`

func findReplaceExecutionString(args map[string]any) (string, error) {
	out, err := render.ExecuteWithData(findReplaceTemplate, args)
	if err != nil {
		return "", fmt.Errorf("find_replace: render execution string: %w", err)
	}
	return string(out), nil
}

// acceptsTextEditableEvents is shared by commands that make sense for any
// request carrying natural-language intent about editing the repository
// (everything except a bare push).
func acceptsTextEditableEvents(kind event.Kind) bool {
	switch kind {
	case event.KindPullRequest, event.KindIssue, event.KindComment, event.KindSlashCommand, event.KindMessage:
		return true
	default:
		return false
	}
}
