// Package runner is a stateless library of host operations built on top of
// a connector: run commands, install packages, manage systemd services. It
// holds no per-host state; callers pass the connection explicitly.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kubeboot/kubeboot/pkg/connector"
)

// Runner executes operations against hosts through a Connector.
type Runner struct{}

// New returns a Runner.
func New() *Runner {
	return &Runner{}
}

// Run executes cmd and returns trimmed stdout. Non-zero exit is an error.
func (r *Runner) Run(ctx context.Context, conn connector.Connector, cmd string, sudo bool) (string, error) {
	stdout, _, err := conn.Exec(ctx, cmd, &connector.ExecOptions{Sudo: sudo})
	if err != nil {
		return string(stdout), err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Check executes cmd and reports whether it exited zero. A non-zero exit is
// not an error; transport failures are.
func (r *Runner) Check(ctx context.Context, conn connector.Connector, cmd string, sudo bool) (bool, error) {
	_, _, err := conn.Exec(ctx, cmd, &connector.ExecOptions{Sudo: sudo})
	if err == nil {
		return true, nil
	}
	var cmdErr *connector.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return false, nil
	}
	return false, err
}

// FileExists reports whether path exists on the host.
func (r *Runner) FileExists(ctx context.Context, conn connector.Connector, path string) (bool, error) {
	st, err := conn.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return st.IsExist, nil
}

// IsPackageInstalled queries the host's package database.
func (r *Runner) IsPackageInstalled(ctx context.Context, conn connector.Connector, facts *Facts, pkg string) (bool, error) {
	if facts == nil || facts.PackageManager == nil || facts.PackageManager.Type == PackageManagerUnknown {
		return false, fmt.Errorf("no supported package manager detected")
	}
	return r.Check(ctx, conn, fmt.Sprintf(facts.PackageManager.PkgQueryCmd, pkg), false)
}

// InstallPackages installs the named packages through the detected package
// manager. Already-installed packages are a no-op at the package manager
// level.
func (r *Runner) InstallPackages(ctx context.Context, conn connector.Connector, facts *Facts, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if facts == nil || facts.PackageManager == nil || facts.PackageManager.Type == PackageManagerUnknown {
		return fmt.Errorf("no supported package manager detected")
	}
	cmd := fmt.Sprintf(facts.PackageManager.InstallCmd, strings.Join(pkgs, " "))
	if _, err := r.Run(ctx, conn, cmd, true); err != nil {
		return fmt.Errorf("failed to install packages %s: %w", strings.Join(pkgs, ", "), err)
	}
	return nil
}

// RefreshPackageIndex updates the package manager cache.
func (r *Runner) RefreshPackageIndex(ctx context.Context, conn connector.Connector, facts *Facts) error {
	if facts == nil || facts.PackageManager == nil || facts.PackageManager.Type == PackageManagerUnknown {
		return fmt.Errorf("no supported package manager detected")
	}
	_, err := r.Run(ctx, conn, facts.PackageManager.UpdateCmd, true)
	return err
}

// IsServiceActive reports whether a systemd unit is active.
func (r *Runner) IsServiceActive(ctx context.Context, conn connector.Connector, unit string) (bool, error) {
	return r.Check(ctx, conn, fmt.Sprintf("systemctl is-active --quiet %s", unit), true)
}

// IsServiceEnabled reports whether a systemd unit is enabled.
func (r *Runner) IsServiceEnabled(ctx context.Context, conn connector.Connector, unit string) (bool, error) {
	return r.Check(ctx, conn, fmt.Sprintf("systemctl is-enabled --quiet %s", unit), true)
}

// EnsureService enables and starts a systemd unit.
func (r *Runner) EnsureService(ctx context.Context, conn connector.Connector, unit string) error {
	if _, err := r.Run(ctx, conn, fmt.Sprintf("systemctl enable --now %s", unit), true); err != nil {
		return fmt.Errorf("failed to enable service %s: %w", unit, err)
	}
	return nil
}

// RestartService restarts a systemd unit after a daemon-reload.
func (r *Runner) RestartService(ctx context.Context, conn connector.Connector, unit string) error {
	if _, err := r.Run(ctx, conn, "systemctl daemon-reload", true); err != nil {
		return fmt.Errorf("failed to daemon-reload: %w", err)
	}
	if _, err := r.Run(ctx, conn, fmt.Sprintf("systemctl restart %s", unit), true); err != nil {
		return fmt.Errorf("failed to restart service %s: %w", unit, err)
	}
	return nil
}
