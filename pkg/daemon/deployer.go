package daemon

import (
	"fmt"
	"strings"
	"time"
)

const (
	remoteDir       = "~/.ratterm"
	remoteScript    = "~/.ratterm/daemon.sh"
	remoteLog       = "~/.ratterm/daemon.log"
	scriptHeredoc   = "RATTERM_EOF"
	restartSettle   = 500 * time.Millisecond
	startedSentinel = "DAEMON_STARTED_"
)

// Execer runs a command on the remote host and returns trimmed stdout.
// *remote.SftpClient satisfies it.
type Execer interface {
	ExecCommand(cmd string) (string, error)
}

// Deployer installs and controls the collector script on one host.
type Deployer struct {
	exec Execer
}

// NewDeployer wraps an established remote session.
func NewDeployer(exec Execer) *Deployer {
	return &Deployer{exec: exec}
}

// IsRunning probes for a live collector process.
func (d *Deployer) IsRunning() (bool, error) {
	out, err := d.exec.ExecCommand(
		"pgrep -f 'sh.*\\.ratterm/daemon\\.sh' >/dev/null 2>&1 && echo DAEMON_RUNNING || echo DAEMON_NOT_RUNNING")
	if err != nil {
		return false, fmt.Errorf("daemon status: %w", err)
	}
	return strings.Contains(out, "DAEMON_RUNNING"), nil
}

// Deploy uploads the script and starts it detached under the given
// host id. Deploying while a collector is already running is a no-op.
// The start is verified shortly afterwards.
func (d *Deployer) Deploy(hostID uint32) error {
	running, err := d.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "mkdir -p %s && cat > %s << '%s'\n", remoteDir, remoteScript, scriptHeredoc)
	b.WriteString(collectorScript)
	if !strings.HasSuffix(collectorScript, "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s\n", scriptHeredoc)
	fmt.Fprintf(&b, "chmod +x %s\n", remoteScript)
	fmt.Fprintf(&b, "HOST_ID=%d nohup sh %s > %s 2>&1 &\n", hostID, remoteScript, remoteLog)
	fmt.Fprintf(&b, "echo %s$!", startedSentinel)

	out, err := d.exec.ExecCommand(b.String())
	if err != nil {
		return fmt.Errorf("deploy daemon: %w", err)
	}
	if !strings.Contains(out, startedSentinel) {
		return fmt.Errorf("deploy daemon: no start confirmation in %q", out)
	}

	time.Sleep(restartSettle)
	running, err = d.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("deploy daemon: process exited right after start")
	}
	return nil
}

// Stop terminates the collector. Stopping a host with no collector is
// not an error.
func (d *Deployer) Stop() error {
	out, err := d.exec.ExecCommand(
		"pkill -TERM -f 'sh.*\\.ratterm/daemon\\.sh' >/dev/null 2>&1 && echo DAEMON_STOPPED || echo DAEMON_NOT_FOUND")
	if err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	if !strings.Contains(out, "DAEMON_STOPPED") && !strings.Contains(out, "DAEMON_NOT_FOUND") {
		return fmt.Errorf("stop daemon: unexpected output %q", out)
	}
	return nil
}

// Restart stops any running collector, lets the old process die, and
// deploys fresh.
func (d *Deployer) Restart(hostID uint32) error {
	if err := d.Stop(); err != nil {
		return err
	}
	time.Sleep(restartSettle)
	return d.Deploy(hostID)
}

// Logs tails the collector's log file.
func (d *Deployer) Logs() (string, error) {
	out, err := d.exec.ExecCommand(
		fmt.Sprintf("tail -100 %s 2>/dev/null || echo NO_LOGS", remoteLog))
	if err != nil {
		return "", fmt.Errorf("daemon logs: %w", err)
	}
	if strings.TrimSpace(out) == "NO_LOGS" {
		return "", nil
	}
	return out, nil
}
