// Package toolexec runs external tools (sops, docker over ssh, ansible) and
// turns non-zero exits into model.ToolError.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/edvin/clientops/internal/model"
)

// Command describes one tool invocation.
type Command struct {
	Name  string
	Args  []string
	Env   []string // appended to the current environment
	Dir   string
	Stdin []byte
}

// Runner executes a Command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// OSRunner runs commands as local subprocesses.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		toolErr := &model.ToolError{
			Tool:     c.Name,
			Args:     c.Args,
			ExitCode: -1,
			Output:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), toolErr
	}
	return stdout.Bytes(), nil
}
