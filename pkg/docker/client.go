package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// CommandTimeout bounds list/inspect style commands.
	CommandTimeout = 2 * time.Second
	// PullTimeout bounds a background image pull.
	PullTimeout = 10 * time.Minute
	// MaxParseItems caps how many `--format '{{json .}}'` lines a
	// single discovery parses.
	MaxParseItems = 500

	// shellFallback picks bash inside the container when present.
	shellFallback = `sh -c 'command -v bash >/dev/null 2>&1 && exec bash || exec sh'`
)

// Runner executes one shell command and returns its combined output.
// LocalRunner covers the local daemon; ExecRunner adapts an SSH exec.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// LocalRunner runs commands through the local shell.
type LocalRunner struct{}

// Run executes command with `sh -c` under the context deadline.
func (LocalRunner) Run(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", firstLine(string(out)), err)
	}
	return string(out), nil
}

// CommandExecer is the one-shot exec surface of an SSH client.
type CommandExecer interface {
	ExecCommand(command string) (string, error)
}

// ExecRunner adapts a CommandExecer to Runner, honoring the context
// deadline by abandoning the call (the remote command keeps its own
// SSH-level lifetime).
type ExecRunner struct {
	Exec CommandExecer
}

type execResult struct {
	out string
	err error
}

// Run executes command over the wrapped execer.
func (r ExecRunner) Run(ctx context.Context, command string) (string, error) {
	done := make(chan execResult, 1)
	go func() {
		out, err := r.Exec.ExecCommand(command)
		done <- execResult{out: out, err: err}
	}()
	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Client issues docker CLI commands on one host.
type Client struct {
	host Host
	run  Runner
}

// NewClient builds a client for host using runner. A nil runner means
// the local shell.
func NewClient(host Host, runner Runner) *Client {
	if runner == nil {
		runner = LocalRunner{}
	}
	return &Client{host: host, run: runner}
}

// Host returns the host this client talks to.
func (c *Client) Host() Host { return c.host }

func (c *Client) runTimed(command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
	defer cancel()
	return c.run.Run(ctx, command)
}

// CheckAvailability probes the daemon and classifies the outcome.
func (c *Client) CheckAvailability() Availability {
	out, err := c.runTimed("docker version --format '{{.Server.Version}}'")
	if err == nil {
		return Available
	}
	low := strings.ToLower(out + " " + err.Error())
	switch {
	case strings.Contains(low, "not found") || strings.Contains(low, "no such file"):
		return NotInstalled
	case strings.Contains(low, "cannot connect to the docker daemon") ||
		strings.Contains(low, "is the docker daemon running"):
		return DaemonNotRunning
	default:
		return ProbeError
	}
}

// psRow and imageRow mirror the docker CLI's {{json .}} field names.
type psRow struct {
	ID    string `json:"ID"`
	Names string `json:"Names"`
	Image string `json:"Image"`
	State string `json:"State"`
}

type imageRow struct {
	ID         string `json:"ID"`
	Repository string `json:"Repository"`
	Tag        string `json:"Tag"`
}

type searchRow struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	StarCount   string `json:"StarCount"`
	IsOfficial  string `json:"IsOfficial"`
}

// Discover sweeps the host: availability, containers split by state,
// and images.
func (c *Client) Discover() Discovery {
	d := Discovery{Availability: c.CheckAvailability()}
	if d.Availability != Available {
		return d
	}

	containers, err := c.ListContainers()
	if err != nil {
		d.Availability = ProbeError
		d.Err = err.Error()
		return d
	}
	for _, ct := range containers {
		if ct.Running() {
			d.Running = append(d.Running, ct)
		} else {
			d.Stopped = append(d.Stopped, ct)
		}
	}

	d.Images, err = c.ListImages()
	if err != nil {
		d.Availability = ProbeError
		d.Err = err.Error()
	}
	return d
}

// ListContainers returns every container, running or not.
func (c *Client) ListContainers() ([]Container, error) {
	out, err := c.runTimed(`docker ps -a --no-trunc --format '{{json .}}'`)
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}
	var containers []Container
	for _, line := range jsonLines(out) {
		var row psRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		containers = append(containers, Container{
			ID:    row.ID,
			Name:  firstName(row.Names),
			Image: row.Image,
			State: row.State,
		})
	}
	return containers, nil
}

// ListImages returns the local images.
func (c *Client) ListImages() ([]Image, error) {
	out, err := c.runTimed(`docker images --format '{{json .}}'`)
	if err != nil {
		return nil, fmt.Errorf("docker images: %w", err)
	}
	var images []Image
	for _, line := range jsonLines(out) {
		var row imageRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		images = append(images, Image{ID: row.ID, Repository: row.Repository, Tag: row.Tag})
	}
	return images, nil
}

// SearchHub queries the registry for images matching term.
func (c *Client) SearchHub(term string) ([]HubImage, error) {
	out, err := c.runTimed(fmt.Sprintf(`docker search --limit 25 --format '{{json .}}' %s`, shellQuote(term)))
	if err != nil {
		return nil, fmt.Errorf("docker search: %w", err)
	}
	var hits []HubImage
	for _, line := range jsonLines(out) {
		var row searchRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		stars, _ := strconv.Atoi(row.StarCount)
		hits = append(hits, HubImage{
			Name:        row.Name,
			Description: row.Description,
			Stars:       stars,
			Official:    strings.Contains(row.IsOfficial, "OK") || row.IsOfficial == "true",
		})
	}
	return hits, nil
}

// ImageExists reports whether ref is already present locally.
func (c *Client) ImageExists(ref string) bool {
	_, err := c.runTimed("docker image inspect --format '{{.Id}}' " + shellQuote(ref))
	return err == nil
}

// PullImage downloads ref. Meant for a worker goroutine; the caller
// wraps the outcome in an ImagePulled message.
func (c *Client) PullImage(ref string) error {
	ctx, cancel := context.WithTimeout(context.Background(), PullTimeout)
	defer cancel()
	if _, err := c.run.Run(ctx, "docker pull "+shellQuote(ref)); err != nil {
		return fmt.Errorf("docker pull %s: %w", ref, err)
	}
	return nil
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(id string) error {
	_, err := c.runTimed("docker start " + shellQuote(id))
	return err
}

// StopContainer stops a running container.
func (c *Client) StopContainer(id string) error {
	// docker stop waits for the grace period before SIGKILL.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := c.run.Run(ctx, "docker stop "+shellQuote(id))
	return err
}

// RemoveContainer deletes a container.
func (c *Client) RemoveContainer(id string) error {
	_, err := c.runTimed("docker rm " + shellQuote(id))
	return err
}

// RemoveImage deletes an image.
func (c *Client) RemoveImage(ref string) error {
	_, err := c.runTimed("docker rmi " + shellQuote(ref))
	return err
}

// ExecCommand builds the interactive exec for a running container.
// An empty shell picks bash when the container has it, else sh.
func ExecCommand(containerID, shell string) string {
	if strings.TrimSpace(shell) == "" {
		return fmt.Sprintf("docker exec -it %s %s", shellQuote(containerID), shellFallback)
	}
	return fmt.Sprintf("docker exec -it %s %s", shellQuote(containerID), shell)
}

// StartExecCommand starts a stopped container, then execs into it.
func StartExecCommand(containerID, shell string) string {
	return fmt.Sprintf("docker start %s && %s", shellQuote(containerID), ExecCommand(containerID, shell))
}

// RunCommand builds an interactive `docker run` from the wizard's
// options.
func RunCommand(imageRef string, opts RunOptions) string {
	var b strings.Builder
	b.WriteString("docker run -it")
	if opts.Remove {
		b.WriteString(" --rm")
	}
	if opts.Name != "" {
		b.WriteString(" --name " + shellQuote(opts.Name))
	}
	for _, v := range opts.Volumes {
		b.WriteString(" -v " + shellQuote(v.HostPath+":"+v.ContainerPath))
	}
	b.WriteString(" " + shellQuote(imageRef))
	if cmd := strings.TrimSpace(opts.Command); cmd != "" {
		b.WriteString(" " + cmd)
	}
	return b.String()
}

// StatsCommand builds the live stats view for one container.
func StatsCommand(containerID string) string {
	return "docker stats " + shellQuote(containerID)
}

// LogsCommand builds the follow-mode log tail for one container.
func LogsCommand(containerID string) string {
	return "docker logs -f --timestamps " + shellQuote(containerID)
}

// jsonLines splits CLI output into JSON object lines, capped at
// MaxParseItems.
func jsonLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= MaxParseItems {
			break
		}
	}
	return lines
}

// firstName trims docker's comma-joined name list to the primary name.
func firstName(names string) string {
	if i := strings.IndexByte(names, ','); i >= 0 {
		names = names[:i]
	}
	return strings.TrimPrefix(names, "/")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// shellQuote single-quotes an argument for sh.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>(){}*?[]~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
