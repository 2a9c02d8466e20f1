// Package docker discovers containers and images through the docker
// CLI, locally or over SSH, and follows container logs for the TUI.
package docker

import "fmt"

// Availability classifies what a docker probe found on a host.
type Availability int

const (
	// Available means the daemon answered.
	Available Availability = iota
	// NotInstalled means the docker binary is missing.
	NotInstalled
	// DaemonNotRunning means the CLI exists but cannot reach the daemon.
	DaemonNotRunning
	// ProbeError covers every other failure.
	ProbeError
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case NotInstalled:
		return "docker not installed"
	case DaemonNotRunning:
		return "docker daemon not running"
	default:
		return "error"
	}
}

// Host identifies where docker commands run. The zero value is the
// local machine; a remote host carries enough to exec over SSH and to
// spawn an equivalent SSH tab.
type Host struct {
	Remote      bool   `json:"remote"`
	HostID      uint32 `json:"host_id,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Port        uint16 `json:"port,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	// Password is session-only and never serialized.
	Password string `json:"-"`
}

// LocalHost returns the local docker host.
func LocalHost() Host { return Host{} }

// Label is the human name shown in the host picker.
func (h Host) Label() string {
	if !h.Remote {
		return "local"
	}
	if h.DisplayName != "" {
		return h.DisplayName
	}
	if h.Port != 0 && h.Port != 22 {
		return fmt.Sprintf("%s@%s:%d", h.Username, h.Hostname, h.Port)
	}
	return fmt.Sprintf("%s@%s", h.Username, h.Hostname)
}

// Container is one `docker ps` row.
type Container struct {
	ID    string
	Name  string
	Image string
	State string
}

// Running reports whether the container state is "running".
func (c Container) Running() bool { return c.State == "running" }

// Image is one `docker images` row.
type Image struct {
	ID         string
	Repository string
	Tag        string
}

// Ref is the repository:tag reference, falling back to the ID for
// dangling images.
func (i Image) Ref() string {
	if i.Repository == "" || i.Repository == "<none>" {
		return i.ID
	}
	if i.Tag == "" || i.Tag == "<none>" {
		return i.Repository
	}
	return i.Repository + ":" + i.Tag
}

// HubImage is one `docker search` row.
type HubImage struct {
	Name        string
	Description string
	Stars       int
	Official    bool
}

// VolumeMount is one -v host:container binding.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
}

// RunOptions shapes a `docker run` built by the creation wizard.
type RunOptions struct {
	Name    string
	Volumes []VolumeMount
	Command string
	Remove  bool
}

// Discovery is the result of a host sweep.
type Discovery struct {
	Availability Availability
	Running      []Container
	Stopped      []Container
	Images       []Image
	Err          string
}

// ImagePulled is delivered by the background pull worker.
type ImagePulled struct {
	Image   string
	Success bool
	Err     string
}
