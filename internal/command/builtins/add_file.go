package builtins

import (
	"fmt"

	"github.com/repopal/repopal/internal/command"
	"github.com/repopal/repopal/internal/render"
)

func init() {
	command.Register(command.Descriptor{
		Name:        "add_file",
		Description: "Create a new file with literal content",
		Documentation: "Writes content verbatim to path, creating any missing parent " +
			"directories. Intended for scaffolding a new file such as a LICENSE or a " +
			"config stub; fails if path already exists.",
		Schema: command.Schema{
			{Name: "path", Type: command.ArgString, Required: true},
			{Name: "content", Type: command.ArgString, Required: true},
		},
		Recipe: command.ContainerRecipe{
			Dockerfile: "FROM alpine:3.20\nWORKDIR /workspace\n",
		},
		ExecutionString: addFileExecutionString,
		Accepts:          acceptsTextEditableEvents,
	})
}

const addFileTemplate = `mkdir -p "$(dirname '{{.path}}')" && if [ -e '{{.path}}' ]; then echo "add_file: {{.path}} already exists" >&2; exit 1; fi && cat > '{{.path}}' <<'REPOPAL_EOF'
{{.content}}
REPOPAL_EOF`

func addFileExecutionString(args map[string]any) (string, error) {
	out, err := render.ExecuteWithData(addFileTemplate, args)
	if err != nil {
		return "", fmt.Errorf("add_file: render execution string: %w", err)
	}
	return string(out), nil
}
