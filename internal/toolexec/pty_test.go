package toolexec

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pty support")
	}
}

func TestPTYStreamer_Lines(t *testing.T) {
	requirePTY(t)

	var lines []string
	err := PTYStreamer{}.Stream(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo \"$WHO\""},
		Env:  []string{"WHO=world"},
	}, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)
	assert.Contains(t, lines, "hello")
	assert.Contains(t, lines, "world")
}

func TestPTYStreamer_ExitCode(t *testing.T) {
	requirePTY(t)

	err := PTYStreamer{}.Stream(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo failed task; exit 2"},
	}, nil)

	var te *model.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "sh", te.Tool)
	assert.Equal(t, 2, te.ExitCode)
}

func TestPTYStreamer_MissingBinary(t *testing.T) {
	err := PTYStreamer{}.Stream(context.Background(), Command{Name: "definitely-not-a-tool"}, nil)

	var te *model.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, -1, te.ExitCode)
}
