// Package command implements the C2 Command Registry: an immutable,
// process-wide table of executable command descriptors populated at
// startup, plus the argument-schema coercion every invocation's args pass
// through before reaching the sandbox executor.
package command

import (
	"fmt"

	"github.com/repopal/repopal/internal/event"
)

// ArgType is the set of primitive types an argument field may declare.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgInt    ArgType = "int"
	ArgBool   ArgType = "bool"
)

// ArgField describes one argument the LLM planner is expected to
// synthesize, with optional coercion defaults.
type ArgField struct {
	Name     string
	Type     ArgType
	Required bool
	Default  any
}

// Schema is an ordered set of typed argument fields. Validate applies type
// coercion, default injection, and required-field enforcement, and rejects
// any key in args not named by the schema.
type Schema []ArgField

// Validate coerces a raw {k:v} mapping (typically produced by the LLM
// planner) into a validated argument record.
func (s Schema) Validate(args map[string]any) (map[string]any, error) {
	known := make(map[string]ArgField, len(s))
	for _, f := range s {
		known[f.Name] = f
	}

	for k := range args {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("command: unknown argument %q", k)
		}
	}

	out := make(map[string]any, len(s))
	for _, f := range s {
		v, present := args[f.Name]
		if !present {
			if f.Required {
				return nil, fmt.Errorf("command: missing required argument %q", f.Name)
			}
			out[f.Name] = f.Default
			continue
		}

		coerced, err := coerce(f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = coerced
	}

	return out, nil
}

func coerce(f ArgField, v any) (any, error) {
	switch f.Type {
	case ArgString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("command: argument %q must be a string", f.Name)
		}
		return s, nil
	case ArgInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			return int(n), nil
		default:
			return nil, fmt.Errorf("command: argument %q must be an integer", f.Name)
		}
	case ArgBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("command: argument %q must be a boolean", f.Name)
		}
		return b, nil
	default:
		return v, nil
	}
}

// ContainerRecipe declares how C4 builds the image a command runs in.
// Build instructions are a plain Dockerfile; no extra build-context files
// are needed by any built-in command, but the field exists for commands
// that embed fixtures alongside their Dockerfile.
type ContainerRecipe struct {
	Dockerfile  string
	ContextFile map[string][]byte
}

// Descriptor is a static, registered-once command. Descriptors are
// value-like and stateless; the same descriptor instance is shared across
// every concurrent invocation that selects it.
type Descriptor struct {
	Name          string
	Description   string
	Documentation string
	Schema        Schema
	Recipe        ContainerRecipe

	// ExecutionString renders validated args into the shell command C4
	// invokes via `/bin/sh -c`.
	ExecutionString func(args map[string]any) (string, error)

	// Accepts reports whether this command is a candidate for the given
	// normalized event kind.
	Accepts func(kind event.Kind) bool
}
