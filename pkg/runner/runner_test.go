package runner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/pkg/connector"
)

// scriptConn answers Exec from a canned command table.
type scriptConn struct {
	responses map[string]string
	failWith  map[string]int
	log       []string
}

func (s *scriptConn) Connect(ctx context.Context, cfg connector.ConnectionCfg) error { return nil }
func (s *scriptConn) IsConnected() bool                                              { return true }
func (s *scriptConn) Close() error                                                   { return nil }

func (s *scriptConn) Exec(ctx context.Context, cmd string, opts *connector.ExecOptions) ([]byte, []byte, error) {
	s.log = append(s.log, cmd)
	for prefix, code := range s.failWith {
		if strings.HasPrefix(cmd, prefix) {
			return nil, nil, &connector.CommandError{Cmd: cmd, ExitCode: code}
		}
	}
	for prefix, out := range s.responses {
		if strings.HasPrefix(cmd, prefix) {
			return []byte(out), nil, nil
		}
	}
	return nil, nil, nil
}

func (s *scriptConn) WriteFile(ctx context.Context, content []byte, destPath string, perms string, sudo bool) error {
	return nil
}

func (s *scriptConn) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if out, ok := s.responses["read:"+path]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("no such file %s", path)
}

func (s *scriptConn) Stat(ctx context.Context, path string) (*connector.FileStat, error) {
	_, ok := s.responses["stat:"+path]
	return &connector.FileStat{Name: path, IsExist: ok}, nil
}

func (s *scriptConn) LookPath(ctx context.Context, file string) (string, error) {
	if out, ok := s.responses["which:"+file]; ok {
		return out, nil
	}
	return "", fmt.Errorf("%s not found", file)
}

var _ connector.Connector = (*scriptConn)(nil)

func TestCheckDistinguishesExitFromTransport(t *testing.T) {
	r := New()
	conn := &scriptConn{
		responses: map[string]string{},
		failWith:  map[string]int{"false": 1, "broken": -1},
	}

	ok, err := r.Check(context.Background(), conn, "true", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Check(context.Background(), conn, "false", false)
	require.NoError(t, err, "a non-zero exit is a negative answer, not an error")
	assert.False(t, ok)

	_, err = r.Check(context.Background(), conn, "broken transport", false)
	require.Error(t, err, "transport failures must surface")
}

func TestGatherFacts(t *testing.T) {
	conn := &scriptConn{responses: map[string]string{
		"hostname -s":          "m1\n",
		"read:/etc/os-release": "ID=ubuntu\nVERSION_ID=\"22.04\"\n",
		"which:apt-get":        "/usr/bin/apt-get",
		"ip -json addr":        `[{"ifname":"lo"},{"ifname":"eth0"},{"ifname":"ens192"}]`,
	}}

	facts, err := New().GatherFacts(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, "m1", facts.Hostname)
	assert.Equal(t, "ubuntu", facts.OSID)
	assert.Equal(t, "22.04", facts.OSVersion)
	assert.Equal(t, PackageManagerApt, facts.PackageManager.Type)
	assert.True(t, facts.HasInterface("eth0"))
	assert.True(t, facts.HasInterface("ens192"))
	assert.False(t, facts.HasInterface("bond0"))
}

func TestDetectPackageManagerFallsThrough(t *testing.T) {
	t.Run("dnf before yum", func(t *testing.T) {
		conn := &scriptConn{responses: map[string]string{
			"which:dnf": "/usr/bin/dnf",
			"which:yum": "/usr/bin/yum",
		}}
		pm := detectPackageManager(context.Background(), conn)
		assert.Equal(t, PackageManagerDnf, pm.Type)
	})

	t.Run("nothing found", func(t *testing.T) {
		conn := &scriptConn{responses: map[string]string{}}
		pm := detectPackageManager(context.Background(), conn)
		assert.Equal(t, PackageManagerUnknown, pm.Type)
	})
}

func TestInstallPackagesRequiresKnownManager(t *testing.T) {
	r := New()
	conn := &scriptConn{responses: map[string]string{}}
	facts := &Facts{PackageManager: &PackageInfo{Type: PackageManagerUnknown}}

	err := r.InstallPackages(context.Background(), conn, facts, "kubelet")
	require.Error(t, err)

	assert.NoError(t, r.InstallPackages(context.Background(), conn, facts), "empty package list is a no-op")
}

func TestFileExists(t *testing.T) {
	r := New()
	conn := &scriptConn{responses: map[string]string{"stat:/etc/kubernetes/admin.conf": "yes"}}

	exists, err := r.FileExists(context.Background(), conn, "/etc/kubernetes/admin.conf")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = r.FileExists(context.Background(), conn, "/missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestParseOSRelease(t *testing.T) {
	id, version := parseOSRelease("NAME=\"Rocky Linux\"\nID=\"rocky\"\nVERSION_ID=\"9.3\"\n")
	assert.Equal(t, "rocky", id)
	assert.Equal(t, "9.3", version)
}
