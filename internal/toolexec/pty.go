package toolexec

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"

	"github.com/edvin/clientops/internal/model"
)

// Streamer runs a Command and hands each output line to onLine as it
// arrives.
type Streamer interface {
	Stream(ctx context.Context, cmd Command, onLine func(string)) error
}

// PTYStreamer runs commands attached to a pseudo-terminal so tools keep
// their interactive, line-buffered output.
type PTYStreamer struct {
	// Tail is how many trailing lines are kept for ToolError.Output.
	Tail int
}

func (s PTYStreamer) Stream(ctx context.Context, c Command, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(append(os.Environ(), "TERM=xterm-256color"), c.Env...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return &model.ToolError{Tool: c.Name, Args: c.Args, ExitCode: -1, Err: err}
	}
	defer ptmx.Close()

	tail := s.Tail
	if tail <= 0 {
		tail = 20
	}
	var last []string

	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if onLine != nil {
			onLine(line)
		}
		last = append(last, line)
		if len(last) > tail {
			last = last[1:]
		}
	}
	// The pty returns EIO once the child exits; that is the normal end of
	// stream and not reported.

	if err := cmd.Wait(); err != nil {
		te := &model.ToolError{
			Tool:     c.Name,
			Args:     c.Args,
			ExitCode: -1,
			Output:   strings.Join(last, "\n"),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		return te
	}
	return nil
}
