package addons

import (
	"fmt"
	"os"
	"runtime"

	"ratterm/pkg/proc"
)

// Installer writes fetched install scripts to disk and runs them
// through the background process manager.
type Installer struct {
	procs *proc.Manager
}

// NewInstaller builds an installer over the shared process manager.
func NewInstaller(procs *proc.Manager) *Installer {
	return &Installer{procs: procs}
}

// Install writes the script to a temp file, marks it executable on
// POSIX, and starts it in the background. It returns the process id
// for CheckInstallComplete.
func (i *Installer) Install(a Addon, script string) (uint64, error) {
	f, err := os.CreateTemp("", "ratterm-addon-"+a.ID+"-*.sh")
	if err != nil {
		return 0, fmt.Errorf("write install script: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("write install script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("write install script: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o755); err != nil {
			os.Remove(path)
			return 0, fmt.Errorf("chmod install script: %w", err)
		}
	}

	id, err := i.procs.Start(fmt.Sprintf("sh %s && rm -f %s", path, path))
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return id, nil
}

// CheckInstallComplete polls a running install. done turns true once
// the process has finished; ok reports whether it exited cleanly.
func (i *Installer) CheckInstallComplete(id uint64) (done, ok bool) {
	info, found := i.procs.Info(id)
	if !found {
		return true, false
	}
	switch info.Status {
	case proc.StatusRunning:
		return false, false
	case proc.StatusCompleted:
		return true, true
	default:
		return true, false
	}
}

// InstallOutput returns the captured script output for the UI.
func (i *Installer) InstallOutput(id uint64) string {
	out, _ := i.procs.Output(id)
	return out
}
