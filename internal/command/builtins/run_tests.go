package builtins

import (
	"fmt"

	"github.com/repopal/repopal/internal/command"
	"github.com/repopal/repopal/internal/render"
)

func init() {
	command.Register(command.Descriptor{
		Name:        "run_tests",
		Description: "Run the repository's own test command and report the result",
		Documentation: "Runs test_command (e.g. 'go test ./...' or 'npm test') inside " +
			"working_dir (default '.') and reports its exit code and output. Does not " +
			"itself install a language toolchain; the command's container recipe is " +
			"expected to already carry one.",
		Schema: command.Schema{
			{Name: "test_command", Type: command.ArgString, Required: true},
			{Name: "working_dir", Type: command.ArgString, Required: false, Default: "."},
		},
		Recipe: command.ContainerRecipe{
			Dockerfile: "FROM golang:1.25-bookworm\nWORKDIR /workspace\n",
		},
		ExecutionString: runTestsExecutionString,
		Accepts:          acceptsTextEditableEvents,
	})
}

const runTestsTemplate = `cd '{{.working_dir}}' && {{.test_command}}`

func runTestsExecutionString(args map[string]any) (string, error) {
	out, err := render.ExecuteWithData(runTestsTemplate, args)
	if err != nil {
		return "", fmt.Errorf("run_tests: render execution string: %w", err)
	}
	return string(out), nil
}
