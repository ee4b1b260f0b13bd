package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/kubeboot/kubeboot/pkg/logger"
)

// DefaultDialTimeout bounds one SSH dial attempt when the connection config
// does not set its own.
const DefaultDialTimeout = 30 * time.Second

// retryBackoff is the pause between dial attempts for transient failures.
const retryBackoff = 2 * time.Second

// SSHConnector implements Connector over an SSH session plus SFTP for file
// transfer.
type SSHConnector struct {
	client      *ssh.Client
	sftpClient  *sftp.Client
	connCfg     ConnectionCfg
	isConnected bool
}

// NewSSHConnector returns an unconnected SSH connector.
func NewSSHConnector() *SSHConnector {
	return &SSHConnector{}
}

// dialFunc is swappable in tests.
var dialFunc = dialSSH

// Connect dials the host, retrying transient failures up to cfg.Retries
// times with a short backoff. Each attempt carries its own timeout so an
// unreachable node is reported failed instead of hanging the phase.
func (s *SSHConnector) Connect(ctx context.Context, cfg ConnectionCfg) error {
	s.connCfg = cfg

	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ConnectionError{Host: cfg.Host, Err: err}
		}
		client, err := dialFunc(ctx, cfg)
		if err == nil {
			s.client = client
			s.isConnected = true
			return nil
		}
		lastErr = err
		if attempt < cfg.Retries {
			logger.Get().Debugf("dial %s failed (attempt %d/%d): %v", cfg.Host, attempt+1, cfg.Retries+1, err)
			select {
			case <-ctx.Done():
				return &ConnectionError{Host: cfg.Host, Err: ctx.Err()}
			case <-time.After(retryBackoff):
			}
		}
	}
	return &ConnectionError{Host: cfg.Host, Err: lastErr}
}

// IsConnected probes the connection with an SSH keepalive.
func (s *SSHConnector) IsConnected() bool {
	if s.client == nil || !s.isConnected {
		return false
	}
	if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
		s.isConnected = false
		return false
	}
	return true
}

// Close releases the SFTP and SSH clients.
func (s *SSHConnector) Close() error {
	s.isConnected = false
	var firstErr error
	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close SFTP client for %s: %w", s.connCfg.Host, err)
		}
		s.sftpClient = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.client = nil
	}
	return firstErr
}

// Exec runs cmd in a fresh session. Non-zero exits are returned as
// *CommandError with captured output attached.
func (s *SSHConnector) Exec(ctx context.Context, cmd string, opts *ExecOptions) ([]byte, []byte, error) {
	if !s.IsConnected() {
		return nil, nil, &ConnectionError{Host: s.connCfg.Host, Err: fmt.Errorf("not connected")}
	}
	eff := ExecOptions{}
	if opts != nil {
		eff = *opts
	}

	runCtx := ctx
	if eff.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, eff.Timeout)
		defer cancel()
	}

	session, err := s.client.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session on %s: %w", s.connCfg.Host, err)
	}
	defer session.Close()

	finalCmd := cmd
	stdin := io.Reader(bytes.NewReader(eff.Stdin))
	if eff.Sudo {
		if s.connCfg.Password != "" {
			finalCmd = "sudo -S -p '' -E -- sh -c " + shellEscape(cmd)
			stdin = io.MultiReader(strings.NewReader(s.connCfg.Password+"\n"), stdin)
		} else {
			finalCmd = "sudo -E -- sh -c " + shellEscape(cmd)
		}
	}
	session.Stdin = stdin

	var stdoutBuf, stderrBuf bytes.Buffer
	if eff.Stream != nil {
		session.Stdout = io.MultiWriter(&stdoutBuf, eff.Stream)
		session.Stderr = io.MultiWriter(&stderrBuf, eff.Stream)
	} else {
		session.Stdout = &stdoutBuf
		session.Stderr = &stderrBuf
	}

	if err := session.Start(finalCmd); err != nil {
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), fmt.Errorf("failed to start command on %s: %w", s.connCfg.Host, err)
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- session.Wait() }()

	select {
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGKILL)
		select {
		case <-doneCh:
		case <-time.After(time.Second):
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), &CommandError{
			Cmd: cmd, ExitCode: -1,
			Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(),
			Underlying: runCtx.Err(),
		}
	case err := <-doneCh:
		if err == nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
		}
		exitCode := -1
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), &CommandError{
			Cmd: cmd, ExitCode: exitCode,
			Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(),
			Underlying: err,
		}
	}
}

func (s *SSHConnector) ensureSftp() error {
	if s.sftpClient != nil {
		return nil
	}
	if !s.IsConnected() {
		return &ConnectionError{Host: s.connCfg.Host, Err: fmt.Errorf("not connected, cannot initialize SFTP")}
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client for %s: %w", s.connCfg.Host, err)
	}
	s.sftpClient = client
	return nil
}

// WriteFile uploads content. Without sudo it writes directly via SFTP; with
// sudo it stages to /tmp and moves the file into place, since SFTP runs as
// the login user.
func (s *SSHConnector) WriteFile(ctx context.Context, content []byte, destPath string, perms string, sudo bool) error {
	if err := s.ensureSftp(); err != nil {
		return err
	}
	if perms != "" {
		if _, err := strconv.ParseUint(perms, 8, 32); err != nil {
			return fmt.Errorf("invalid permissions %q for %s: %w", perms, destPath, err)
		}
	}

	if !sudo {
		return s.writeViaSFTP(content, destPath, perms)
	}

	tmpPath := filepath.Join("/tmp", fmt.Sprintf("kubeboot-%d-%s", time.Now().UnixNano(), filepath.Base(destPath)))
	if err := s.writeViaSFTP(content, tmpPath, "0600"); err != nil {
		return fmt.Errorf("failed to stage %s: %w", destPath, err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_, _, _ = s.Exec(cleanupCtx, fmt.Sprintf("rm -f %s", shellEscape(tmpPath)), nil)
	}()

	destDir := filepath.Dir(destPath)
	if destDir != "." && destDir != "/" && destDir != "" {
		if _, stderr, err := s.Exec(ctx, fmt.Sprintf("mkdir -p %s", shellEscape(destDir)), &ExecOptions{Sudo: true}); err != nil {
			return fmt.Errorf("failed to create directory %s: %s: %w", destDir, string(stderr), err)
		}
	}
	if _, stderr, err := s.Exec(ctx, fmt.Sprintf("mv %s %s", shellEscape(tmpPath), shellEscape(destPath)), &ExecOptions{Sudo: true}); err != nil {
		return fmt.Errorf("failed to move file to %s: %s: %w", destPath, string(stderr), err)
	}
	if perms != "" {
		if _, stderr, err := s.Exec(ctx, fmt.Sprintf("chmod %s %s", perms, shellEscape(destPath)), &ExecOptions{Sudo: true}); err != nil {
			return fmt.Errorf("failed to chmod %s: %s: %w", destPath, string(stderr), err)
		}
	}
	return nil
}

func (s *SSHConnector) writeViaSFTP(content []byte, destPath, perms string) error {
	parent := filepath.Dir(destPath)
	if parent != "." && parent != "/" && parent != "" {
		if err := s.sftpClient.MkdirAll(parent); err != nil {
			return fmt.Errorf("failed to create parent directory %s via sftp: %w", parent, err)
		}
	}
	f, err := s.sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s via sftp: %w", destPath, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("failed to write remote file %s via sftp: %w", destPath, err)
	}
	if perms != "" {
		if permVal, err := strconv.ParseUint(perms, 8, 32); err == nil {
			if err := s.sftpClient.Chmod(destPath, os.FileMode(permVal)); err != nil {
				logger.Get().Warnf("failed to chmod %s on %s: %v", destPath, s.connCfg.Host, err)
			}
		}
	}
	return nil
}

// ReadFile retrieves a remote file, falling back to sudo cat when the login
// user cannot read it directly.
func (s *SSHConnector) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := s.ensureSftp(); err != nil {
		return nil, err
	}
	f, err := s.sftpClient.Open(path)
	if err == nil {
		defer f.Close()
		return io.ReadAll(f)
	}
	stdout, stderr, execErr := s.Exec(ctx, fmt.Sprintf("cat %s", shellEscape(path)), &ExecOptions{Sudo: true})
	if execErr != nil {
		return nil, fmt.Errorf("failed to read %s (sftp: %v, sudo cat: %s): %w", path, err, string(stderr), execErr)
	}
	return stdout, nil
}

// Stat reports remote file metadata; a missing path is not an error.
func (s *SSHConnector) Stat(ctx context.Context, path string) (*FileStat, error) {
	if err := s.ensureSftp(); err != nil {
		return nil, err
	}
	fi, err := s.sftpClient.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileStat{Name: filepath.Base(path), IsExist: false}, nil
		}
		return nil, fmt.Errorf("failed to stat remote path %s: %w", path, err)
	}
	return &FileStat{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
		IsExist: true,
	}, nil
}

// LookPath resolves an executable in the remote PATH.
func (s *SSHConnector) LookPath(ctx context.Context, file string) (string, error) {
	if strings.ContainsAny(file, " \t\n\r`;&|$<>()!{}[]*?^~") {
		return "", fmt.Errorf("invalid characters in executable name %q", file)
	}
	stdout, stderr, err := s.Exec(ctx, fmt.Sprintf("command -v %s", shellEscape(file)), nil)
	if err != nil {
		return "", fmt.Errorf("executable %q not found: %s: %w", file, string(stderr), err)
	}
	p := strings.TrimSpace(string(stdout))
	if p == "" {
		return "", fmt.Errorf("executable %q not found in PATH", file)
	}
	return p, nil
}

func dialSSH(ctx context.Context, cfg ConnectionCfg) (*ssh.Client, error) {
	auth, err := buildAuthMethods(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth setup for %s: %w", cfg.Host, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		logger.Get().Warnf("no host key callback configured for %s, accepting any host key", cfg.Host)
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func buildAuthMethods(cfg ConnectionCfg) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	key := cfg.PrivateKey
	if len(key) == 0 && cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", cfg.PrivateKeyPath, err)
		}
		key = data
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication method configured (need a private key or password)")
	}
	return methods, nil
}

var _ Connector = (*SSHConnector)(nil)
