package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/pkg/tool"
)

const defaultCommandTimeout = 60 * time.Second

// commandTool runs a shell command on the host. Output and exit status come
// back as tool output so the model can react to failures; only infrastructure
// problems surface as errors. It is deliberately not Concurrent: commands in
// one interaction may depend on each other's side effects.
func commandTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:        "generic_linux_command",
		Description: "Execute a Linux shell command and return its combined output. Non-zero exit codes are reported in the output, not as failures.",
		Timeout:     5 * time.Minute,
		Parameters: []tool.Parameter{
			{Name: "command", Type: "string", Description: "Shell command line to execute", Required: true},
			{Name: "workdir", Type: "string", Description: "Working directory, relative to the workspace root", Required: false},
			{Name: "timeout", Type: "number", Description: "Timeout in seconds (default 60)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
			command, _ := args["command"].(string)
			command = strings.TrimSpace(command)
			if command == "" {
				return tool.Result{}, fmt.Errorf("command is required")
			}

			timeout := defaultCommandTimeout
			if raw, ok := args["timeout"].(float64); ok && raw > 0 {
				timeout = time.Duration(raw * float64(time.Second))
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Dir = resolveWorkdir(opts.WorkspaceRoot, args["workdir"])

			var buf bytes.Buffer
			cmd.Stdout = &buf
			cmd.Stderr = &buf

			start := time.Now()
			err := cmd.Run()
			elapsed := time.Since(start)

			output := buf.String()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				output += fmt.Sprintf("\n(command timed out after %s)", timeout)
			} else if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					output += fmt.Sprintf("\n(exit code %d)", exitErr.ExitCode())
				} else {
					return tool.Result{}, fmt.Errorf("failed to run command: %w", err)
				}
			}

			log.Debug().
				Str("tool", "generic_linux_command").
				Dur("elapsed", elapsed).
				Msg("Command finished")

			if strings.TrimSpace(output) == "" {
				output = "(no output)"
			}
			return tool.Result{Output: output}, nil
		},
	}
}

func resolveWorkdir(root string, value interface{}) string {
	raw, _ := value.(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return root
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	if root == "" {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(root, raw))
}
