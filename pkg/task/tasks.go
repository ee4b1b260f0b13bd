package task

import (
	"github.com/pkg/errors"
)

// CommandTask runs a shell command when a probe indicates the desired state
// is not yet reached. The probe is either CheckCmd (done when it exits zero)
// or DoneFile (done when the file exists). With neither, the task always
// applies.
type CommandTask struct {
	TaskName string
	Cmd      string
	CheckCmd string
	DoneFile string
	Sudo     bool
}

func (t *CommandTask) Name() string { return t.TaskName }

func (t *CommandTask) Check(tc *Context) (bool, error) {
	if t.DoneFile != "" {
		return tc.Runner.FileExists(tc.Ctx, tc.Conn, t.DoneFile)
	}
	if t.CheckCmd != "" {
		return tc.Runner.Check(tc.Ctx, tc.Conn, t.CheckCmd, t.Sudo)
	}
	return false, nil
}

func (t *CommandTask) Apply(tc *Context) error {
	out, err := tc.Runner.Run(tc.Ctx, tc.Conn, t.Cmd, t.Sudo)
	if err != nil {
		return errors.Wrapf(err, "task %q failed", t.TaskName)
	}
	if out != "" {
		tc.Log.Debugf("%s: %s", t.TaskName, out)
	}
	return nil
}

// PackageTask installs OS packages through the node's detected package
// manager. Done when every listed package is already installed.
type PackageTask struct {
	TaskName string
	Packages []string
}

func (t *PackageTask) Name() string { return t.TaskName }

func (t *PackageTask) Check(tc *Context) (bool, error) {
	for _, pkg := range t.Packages {
		installed, err := tc.Runner.IsPackageInstalled(tc.Ctx, tc.Conn, tc.Facts, pkg)
		if err != nil {
			return false, err
		}
		if !installed {
			return false, nil
		}
	}
	return true, nil
}

func (t *PackageTask) Apply(tc *Context) error {
	return tc.Runner.InstallPackages(tc.Ctx, tc.Conn, tc.Facts, t.Packages...)
}

// FileTask writes a file with the given content and permissions. Done when
// the remote content already matches byte for byte. RestartUnit, when set,
// restarts that systemd unit after the file changes.
type FileTask struct {
	TaskName    string
	Path        string
	Content     string
	Perms       string
	Sudo        bool
	RestartUnit string
}

func (t *FileTask) Name() string { return t.TaskName }

func (t *FileTask) Check(tc *Context) (bool, error) {
	exists, err := tc.Runner.FileExists(tc.Ctx, tc.Conn, t.Path)
	if err != nil || !exists {
		return false, err
	}
	current, err := tc.Conn.ReadFile(tc.Ctx, t.Path)
	if err != nil {
		// Unreadable counts as drifted, Apply will rewrite it.
		tc.Log.Debugf("%s: cannot read %s, assuming drift: %v", t.TaskName, t.Path, err)
		return false, nil
	}
	return string(current) == t.Content, nil
}

func (t *FileTask) Apply(tc *Context) error {
	perms := t.Perms
	if perms == "" {
		perms = "0644"
	}
	if err := tc.Conn.WriteFile(tc.Ctx, []byte(t.Content), t.Path, perms, t.Sudo); err != nil {
		return errors.Wrapf(err, "task %q failed writing %s", t.TaskName, t.Path)
	}
	if t.RestartUnit != "" {
		if err := tc.Runner.RestartService(tc.Ctx, tc.Conn, t.RestartUnit); err != nil {
			return errors.Wrapf(err, "task %q failed restarting %s", t.TaskName, t.RestartUnit)
		}
	}
	return nil
}

// ServiceTask ensures a systemd unit is enabled and running.
type ServiceTask struct {
	TaskName string
	Unit     string
}

func (t *ServiceTask) Name() string { return t.TaskName }

func (t *ServiceTask) Check(tc *Context) (bool, error) {
	active, err := tc.Runner.IsServiceActive(tc.Ctx, tc.Conn, t.Unit)
	if err != nil || !active {
		return false, err
	}
	return tc.Runner.IsServiceEnabled(tc.Ctx, tc.Conn, t.Unit)
}

func (t *ServiceTask) Apply(tc *Context) error {
	return tc.Runner.EnsureService(tc.Ctx, tc.Conn, t.Unit)
}

var (
	_ Task = (*CommandTask)(nil)
	_ Task = (*PackageTask)(nil)
	_ Task = (*FileTask)(nil)
	_ Task = (*ServiceTask)(nil)
)
