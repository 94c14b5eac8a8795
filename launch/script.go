package launch

import (
	"fmt"
	"os"
	"strings"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
	"github.com/sonusflow/spark-vllm-docker/recipe"
)

// Generate renders the launch script for a recipe: the command
// template with all parameters substituted, wrapped in a bash script
// that exports the recipe's environment first.
func Generate(r *recipe.Recipe, overrides Overrides, solo bool, extraArgs []string) (string, error) {
	params := mergeParams(r.Defaults, overrides.Params(solo))

	command, err := substitute(r.Command, params)
	if err != nil {
		return "", err
	}

	if solo {
		command = stripDistributedFlags(command)
	}
	if len(extraArgs) > 0 {
		command = appendExtraArgs(command, extraArgs)
	}

	lines := []string{
		"#!/bin/bash",
		"# Generated from recipe: " + r.Name,
		"",
	}
	if len(r.Env) > 0 {
		lines = append(lines, "# Environment variables")
		for _, ev := range r.Env {
			lines = append(lines, fmt.Sprintf("export %s=%q", ev.Name, ev.Value))
		}
		lines = append(lines, "")
	}
	lines = append(lines,
		"# Run the model",
		strings.TrimSpace(command),
		"",
	)
	return strings.Join(lines, "\n"), nil
}

// substitute replaces {name} placeholders in the command template.
// Doubled braces escape to literals. Unknown names are fatal; the
// error lists every parameter that was available.
func substitute(template string, params map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", apperrors.New(apperrors.ErrTemplate, "unclosed '{' in recipe command")
			}
			name := template[i+1 : i+end]
			value, ok := params[name]
			if !ok {
				return "", apperrors.Newf(apperrors.ErrTemplate,
					"missing parameter in recipe command: '%s' (available parameters: %s)",
					name, strings.Join(sortedKeys(params), ", "))
			}
			b.WriteString(value)
			i += end + 1
		case c == '}':
			return "", apperrors.New(apperrors.ErrTemplate, "unmatched '}' in recipe command")
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// stripDistributedFlags drops every command line mentioning the
// distributed executor backend. Solo runs must not ask vLLM for Ray.
func stripDistributedFlags(command string) string {
	lines := strings.Split(command, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "--distributed-executor-backend") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// appendExtraArgs tacks passthrough arguments onto the end of the
// command, honoring a trailing backslash continuation so multi-line
// templates stay valid bash.
func appendExtraArgs(command string, extraArgs []string) string {
	joined := strings.Join(extraArgs, " ")
	command = trimRightSpace(command)
	if strings.HasSuffix(command, "\\") {
		command = trimRightSpace(strings.TrimRight(command, "\\"))
		return command + " \\\n    " + joined
	}
	return command + " " + joined
}

func trimRightSpace(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}

// WriteTempScript writes the script to an executable temp file and
// returns its path with a cleanup func that removes it. Cleanup
// ignores errors; losing a temp file is not worth failing a launch.
func WriteTempScript(content string) (string, func(), error) {
	f, err := os.CreateTemp("", "tmp*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create launch script: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write launch script: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write launch script: %w", err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to mark launch script executable: %w", err)
	}
	return path, cleanup, nil
}
