// Package connector provides the remote execution transport: an abstraction
// over running commands and writing files on a target machine, with an SSH
// implementation used for cluster nodes and a local implementation used for
// loopback targets and tests.
package connector

import (
	"context"
	"io/fs"
	"time"

	"golang.org/x/crypto/ssh"
)

// ConnectionCfg holds the parameters needed to reach one host.
type ConnectionCfg struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKey     []byte
	PrivateKeyPath string
	// Timeout bounds a single dial attempt. Zero means DefaultDialTimeout.
	Timeout time.Duration
	// Retries is the number of additional dial attempts made for transient
	// connection failures before the host is reported unreachable.
	Retries int
	// HostKeyCallback verifies the server key. When nil the connector
	// falls back to accepting any key and logs a warning.
	HostKeyCallback ssh.HostKeyCallback `json:"-" yaml:"-"`
}

// FileStat describes basic remote file metadata.
type FileStat struct {
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
	IsExist bool
}

// Connector is the transport a runner drives. Implementations must be safe
// for sequential use by one goroutine; the phase controller gives each node
// its own connector.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectionCfg) error
	// Exec runs cmd and returns captured stdout/stderr. A non-zero exit is
	// reported as a *CommandError.
	Exec(ctx context.Context, cmd string, opts *ExecOptions) (stdout, stderr []byte, err error)
	// WriteFile places content at destPath with the given octal permission
	// string, escalating via sudo when requested.
	WriteFile(ctx context.Context, content []byte, destPath string, perms string, sudo bool) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (*FileStat, error)
	LookPath(ctx context.Context, file string) (string, error)
	IsConnected() bool
	Close() error
}
