package connector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEscape(t *testing.T) {
	assert.Equal(t, "'plain'", shellEscape("plain"))
	assert.Equal(t, "'with space'", shellEscape("with space"))
	assert.Equal(t, `'it'\''s'`, shellEscape("it's"))
}

func TestLocalExec(t *testing.T) {
	l := &LocalConnector{}
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		stdout, _, err := l.Exec(ctx, "echo hello", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(stdout))
	})

	t.Run("non-zero exit is a CommandError", func(t *testing.T) {
		_, _, err := l.Exec(ctx, "exit 3", nil)
		require.Error(t, err)
		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, 3, cmdErr.ExitCode)
	})

	t.Run("stderr captured on failure", func(t *testing.T) {
		_, stderr, err := l.Exec(ctx, "echo oops >&2; false", nil)
		require.Error(t, err)
		assert.Contains(t, string(stderr), "oops")
	})

	t.Run("stdin is wired through", func(t *testing.T) {
		stdout, _, err := l.Exec(ctx, "cat", &ExecOptions{Stdin: []byte("piped")})
		require.NoError(t, err)
		assert.Equal(t, "piped", string(stdout))
	})
}

func TestLocalFileOperations(t *testing.T) {
	l := &LocalConnector{}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	require.NoError(t, l.WriteFile(ctx, []byte("key: value\n"), path, "0600", false))

	content, err := l.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "key: value\n", string(content))

	st, err := l.Stat(ctx, path)
	require.NoError(t, err)
	assert.True(t, st.IsExist)
	assert.False(t, st.IsDir)

	st, err = l.Stat(ctx, filepath.Join(dir, "missing"))
	require.NoError(t, err, "a missing path is not an error")
	assert.False(t, st.IsExist)

	t.Run("bad permission string rejected", func(t *testing.T) {
		err := l.WriteFile(ctx, nil, path, "worldwritable", false)
		require.Error(t, err)
	})
}

func TestCommandErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &CommandError{Cmd: "x", ExitCode: 1, Underlying: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "x")

	connErr := &ConnectionError{Host: "10.0.0.1", Err: inner}
	assert.ErrorIs(t, connErr, inner)
	assert.Contains(t, connErr.Error(), "10.0.0.1")
}
