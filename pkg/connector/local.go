package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// shellEscape single-quotes s for safe interpolation into a shell command.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// LocalConnector runs everything on the local machine through `sh -c`. It is
// used when a target node is the machine kubeboot runs on, and by tests.
type LocalConnector struct {
	connCfg ConnectionCfg
}

func (l *LocalConnector) Connect(ctx context.Context, cfg ConnectionCfg) error {
	l.connCfg = cfg
	return nil
}

func (l *LocalConnector) IsConnected() bool { return true }

func (l *LocalConnector) Close() error { return nil }

func (l *LocalConnector) Exec(ctx context.Context, cmd string, opts *ExecOptions) ([]byte, []byte, error) {
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

	finalCmd := cmd
	if eff.Sudo {
		finalCmd = "sudo -E -- sh -c " + shellEscape(cmd)
	}

	c := exec.CommandContext(runCtx, "sh", "-c", finalCmd)
	if len(eff.Stdin) > 0 {
		c.Stdin = bytes.NewReader(eff.Stdin)
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	if eff.Stream != nil {
		c.Stdout = io.MultiWriter(&stdoutBuf, eff.Stream)
		c.Stderr = io.MultiWriter(&stderrBuf, eff.Stream)
	} else {
		c.Stdout = &stdoutBuf
		c.Stderr = &stderrBuf
	}

	err := c.Run()
	if err == nil {
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
	}
	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	if runCtx.Err() != nil {
		err = runCtx.Err()
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), &CommandError{
		Cmd: cmd, ExitCode: exitCode,
		Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(),
		Underlying: err,
	}
}

func (l *LocalConnector) WriteFile(ctx context.Context, content []byte, destPath string, perms string, sudo bool) error {
	mode := os.FileMode(0o644)
	if perms != "" {
		v, err := strconv.ParseUint(perms, 8, 32)
		if err != nil {
			return fmt.Errorf("invalid permissions %q for %s: %w", perms, destPath, err)
		}
		mode = os.FileMode(v)
	}
	if sudo && os.Geteuid() != 0 {
		tmp, err := os.CreateTemp("", "kubeboot-local-*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			return err
		}
		tmp.Close()
		cmd := fmt.Sprintf("mkdir -p %s && mv %s %s && chmod %o %s",
			shellEscape(filepath.Dir(destPath)), shellEscape(tmp.Name()), shellEscape(destPath), mode, shellEscape(destPath))
		_, stderr, err := l.Exec(ctx, cmd, &ExecOptions{Sudo: true})
		if err != nil {
			return fmt.Errorf("failed to write %s: %s: %w", destPath, string(stderr), err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, content, mode)
}

func (l *LocalConnector) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (l *LocalConnector) Stat(ctx context.Context, path string) (*FileStat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileStat{Name: filepath.Base(path), IsExist: false}, nil
		}
		return nil, err
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

func (l *LocalConnector) LookPath(ctx context.Context, file string) (string, error) {
	return exec.LookPath(file)
}

var _ Connector = (*LocalConnector)(nil)
