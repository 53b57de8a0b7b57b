package sandbox

import (
	"fmt"
	"strings"
)

// baseImage extracts the image reference named by a recipe's Dockerfile
// FROM instruction. buildImage calls this before ever shelling out to a
// build tool, so a malformed recipe fails fast with a precise error
// instead of an opaque build-tool exit code.
func baseImage(dockerfile string) (string, error) {
	for _, line := range strings.Split(dockerfile, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "FROM ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return "", fmt.Errorf("sandbox: malformed FROM line %q", line)
		}
		return fields[1], nil
	}
	return "", fmt.Errorf("sandbox: recipe has no FROM instruction")
}
