package toolexec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

func TestOSRunner_Stdout(t *testing.T) {
	out, err := OSRunner{}.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", "cat; echo \"$GREETING\""},
		Env:   []string{"GREETING=hi"},
		Stdin: []byte("in:"),
	})
	require.NoError(t, err)
	assert.Equal(t, "in:hi\n", string(out))
}

func TestOSRunner_ExitCode(t *testing.T) {
	_, err := OSRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo broken >&2; exit 3"},
	})
	require.Error(t, err)

	var toolErr *model.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Equal(t, "sh", toolErr.Tool)
	assert.Contains(t, toolErr.Output, "broken")
}

func TestOSRunner_MissingBinary(t *testing.T) {
	_, err := OSRunner{}.Run(context.Background(), Command{Name: "definitely-not-a-binary-xyz"})
	require.Error(t, err)

	var toolErr *model.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, -1, toolErr.ExitCode)
}
