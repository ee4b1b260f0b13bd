package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/pkg/connector"
	"github.com/kubeboot/kubeboot/pkg/logger"
	"github.com/kubeboot/kubeboot/pkg/runner"
)

func localContext(t *testing.T) *Context {
	t.Helper()
	conn := &connector.LocalConnector{}
	require.NoError(t, conn.Connect(context.Background(), connector.ConnectionCfg{Host: "localhost"}))
	return &Context{
		Ctx:    context.Background(),
		Conn:   conn,
		Runner: runner.New(),
		Log:    logger.Get(),
	}
}

func TestFileTaskConvergence(t *testing.T) {
	tc := localContext(t)
	path := filepath.Join(t.TempDir(), "rendered.conf")
	ft := &FileTask{TaskName: "render", Path: path, Content: "a = 1\n"}

	done, err := ft.Check(tc)
	require.NoError(t, err)
	assert.False(t, done, "missing file means drift")

	require.NoError(t, ft.Apply(tc))

	done, err = ft.Check(tc)
	require.NoError(t, err)
	assert.True(t, done, "matching content means converged")

	ft.Content = "a = 2\n"
	done, err = ft.Check(tc)
	require.NoError(t, err)
	assert.False(t, done, "changed desired content means drift again")
}

func TestCommandTaskProbes(t *testing.T) {
	tc := localContext(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	t.Run("done file", func(t *testing.T) {
		ct := &CommandTask{TaskName: "touch", DoneFile: marker, Cmd: "touch " + marker}
		done, err := ct.Check(tc)
		require.NoError(t, err)
		assert.False(t, done)

		require.NoError(t, ct.Apply(tc))

		done, err = ct.Check(tc)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("check command", func(t *testing.T) {
		ct := &CommandTask{TaskName: "probe", CheckCmd: "test -f " + marker, Cmd: "true"}
		done, err := ct.Check(tc)
		require.NoError(t, err)
		assert.True(t, done, "probe exits zero after the marker exists")

		ct.CheckCmd = "test -f " + filepath.Join(dir, "absent")
		done, err = ct.Check(tc)
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("no probe always applies", func(t *testing.T) {
		ct := &CommandTask{TaskName: "always", Cmd: "true"}
		done, err := ct.Check(tc)
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("failing apply surfaces the command error", func(t *testing.T) {
		ct := &CommandTask{TaskName: "boom", Cmd: "exit 7"}
		err := ct.Apply(tc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}
