package sshmgr

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// MaxHosts is the size of a /24 sweep (.1 through .254).
	MaxHosts = 254
	// ConnectTimeout bounds each TCP dial and SSH auth probe.
	ConnectTimeout = 1500 * time.Millisecond
	// MaxParallel is the reachability worker count.
	MaxParallel = 32
	// AuthParallel is the auth-probe worker count; SSH handshakes are
	// heavier than bare dials.
	AuthParallel = 8
)

// CommonPorts are the SSH ports tried per host, in order.
var CommonPorts = []int{22, 2222, 22222}

// EventKind tags a scan event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventHostFound
	EventComplete
	EventError
	EventCancelled
	EventAuthProgress
	EventAuthSuccess
	EventAuthComplete
)

// FoundHost is one responsive address.
type FoundHost struct {
	IP   string
	Port int
}

// ScanEvent is one item of the scanner's event stream. The stream ends
// with exactly one terminal event: Complete (AuthComplete for
// authenticated scans), Error, or Cancelled.
type ScanEvent struct {
	Kind      EventKind
	Scanned   int
	Total     int
	Succeeded int
	Failed    int
	Host      FoundHost
	Hosts     []FoundHost
	Err       string
}

// Terminal reports whether the event closes the stream.
func (e ScanEvent) Terminal() bool {
	switch e.Kind {
	case EventComplete, EventError, EventCancelled, EventAuthComplete:
		return true
	default:
		return false
	}
}

// authSpec holds credentials for the authenticated scan phase.
type authSpec struct {
	username string
	password string
}

// Scanner sweeps a /24 for SSH hosts, streaming typed events to a
// single consumer. The channel is sized for a full sweep so workers
// never block on a slow consumer.
type Scanner struct {
	events    chan ScanEvent
	cancelled atomic.Bool
	wg        sync.WaitGroup

	ports   []int
	timeout time.Duration
	auth    *authSpec
}

// NewReachabilityScan starts a reachability sweep of subnet, given as
// `a.b.c.0/24` or a bare `a.b.c` prefix.
func NewReachabilityScan(subnet string) (*Scanner, error) {
	hosts, err := EnumerateSubnet(subnet)
	if err != nil {
		return nil, err
	}
	return startScan(hosts, CommonPorts, ConnectTimeout, nil), nil
}

// NewAuthenticatedScan starts a sweep that probes every responsive
// host with password auth.
func NewAuthenticatedScan(subnet, username, password string) (*Scanner, error) {
	hosts, err := EnumerateSubnet(subnet)
	if err != nil {
		return nil, err
	}
	return startScan(hosts, CommonPorts, ConnectTimeout, &authSpec{username, password}), nil
}

// startScan launches the producer over an explicit host set. Tests use
// it directly with loopback listeners.
func startScan(hosts []string, ports []int, timeout time.Duration, auth *authSpec) *Scanner {
	s := &Scanner{
		// Room for every possible event of a full sweep plus the
		// terminal, so producers never block.
		events:  make(chan ScanEvent, 4*MaxHosts+64),
		ports:   ports,
		timeout: timeout,
		auth:    auth,
	}
	s.wg.Add(1)
	go s.run(hosts)
	return s
}

// Poll returns the next pending event without blocking.
func (s *Scanner) Poll() (ScanEvent, bool) {
	select {
	case e, ok := <-s.events:
		if !ok {
			return ScanEvent{}, false
		}
		return e, true
	default:
		return ScanEvent{}, false
	}
}

// Cancel asks the workers to wind down. The stream still ends with its
// terminal event (Cancelled).
func (s *Scanner) Cancel() {
	s.cancelled.Store(true)
}

// Wait blocks until the producer has finished. Used on teardown so a
// dropped scanner does not leak goroutines.
func (s *Scanner) Wait() {
	s.wg.Wait()
}

func (s *Scanner) run(hosts []string) {
	defer s.wg.Done()
	defer close(s.events)

	found := s.sweep(hosts)
	if s.cancelled.Load() {
		s.events <- ScanEvent{Kind: EventCancelled}
		return
	}
	sort.Slice(found, func(i, j int) bool { return found[i].IP < found[j].IP })

	if s.auth == nil {
		s.events <- ScanEvent{Kind: EventComplete, Hosts: found}
		return
	}

	authed := s.probeAll(found)
	if s.cancelled.Load() {
		s.events <- ScanEvent{Kind: EventCancelled}
		return
	}
	sort.Slice(authed, func(i, j int) bool { return authed[i].IP < authed[j].IP })
	s.events <- ScanEvent{Kind: EventAuthComplete, Hosts: authed}
}

// sweep dials every host on the port list with a bounded worker pool,
// emitting Progress per completed chunk and HostFound per hit.
func (s *Scanner) sweep(hosts []string) []FoundHost {
	total := len(hosts)
	jobs := make(chan string)
	hits := make(chan FoundHost, total)

	var scanned atomic.Int64
	var wg sync.WaitGroup
	workers := MaxParallel
	if workers > total {
		workers = total
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for ip := range jobs {
				if s.cancelled.Load() {
					continue
				}
				if port, ok := s.dialAny(ip); ok {
					hit := FoundHost{IP: ip, Port: port}
					hits <- hit
					s.events <- ScanEvent{Kind: EventHostFound, Host: hit}
				}
				n := int(scanned.Add(1))
				if n%MaxParallel == 0 || n == total {
					s.events <- ScanEvent{Kind: EventProgress, Scanned: n, Total: total}
				}
			}
		}()
	}
	for _, ip := range hosts {
		jobs <- ip
	}
	close(jobs)
	wg.Wait()
	close(hits)

	var found []FoundHost
	for h := range hits {
		found = append(found, h)
	}
	return found
}

func (s *Scanner) dialAny(ip string) (int, bool) {
	for _, port := range s.ports {
		conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprint(port)), s.timeout)
		if err == nil {
			conn.Close()
			return port, true
		}
		if s.cancelled.Load() {
			return 0, false
		}
	}
	return 0, false
}

// probeAll attempts password auth against every found host.
func (s *Scanner) probeAll(found []FoundHost) []FoundHost {
	total := len(found)
	jobs := make(chan FoundHost)
	hits := make(chan FoundHost, total)

	var scanned, succ, fail atomic.Int64
	var wg sync.WaitGroup
	workers := AuthParallel
	if workers > total {
		workers = total
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for h := range jobs {
				if s.cancelled.Load() {
					continue
				}
				if s.probe(h) {
					succ.Add(1)
					hits <- h
					s.events <- ScanEvent{Kind: EventAuthSuccess, Host: h}
				} else {
					fail.Add(1)
				}
				s.events <- ScanEvent{
					Kind:      EventAuthProgress,
					Scanned:   int(scanned.Add(1)),
					Total:     total,
					Succeeded: int(succ.Load()),
					Failed:    int(fail.Load()),
				}
			}
		}()
	}
	for _, h := range found {
		jobs <- h
	}
	close(jobs)
	wg.Wait()
	close(hits)

	var authed []FoundHost
	for h := range hits {
		authed = append(authed, h)
	}
	return authed
}

// probe runs one SSH handshake with password auth. Any handshake
// failure, including auth rejection, counts as a miss.
func (s *Scanner) probe(h FoundHost) bool {
	cfg := &ssh.ClientConfig{
		User:            s.auth.username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.auth.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(h.IP, fmt.Sprint(h.Port)), cfg)
	if err != nil {
		return false
	}
	client.Close()
	return true
}

// PrimarySubnet returns the /24 of the primary interface, detected by
// a UDP connect that never sends a packet.
func PrimarySubnet() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("detect primary interface: %w", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", fmt.Errorf("primary interface has no IPv4 address")
	}
	ip := addr.IP.To4()
	return fmt.Sprintf("%d.%d.%d.0/24", ip[0], ip[1], ip[2]), nil
}

// EnumerateSubnet expands a /24 spec into host addresses .1 through
// .254. Accepted forms: `a.b.c.0/24` and bare `a.b.c`.
func EnumerateSubnet(subnet string) ([]string, error) {
	base, err := ParseSubnet(subnet)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, MaxHosts)
	for i := 1; i <= MaxHosts; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", base, i))
	}
	return hosts, nil
}

// ParseSubnet normalizes a subnet spec to its `a.b.c` prefix.
func ParseSubnet(subnet string) (string, error) {
	subnet = strings.TrimSpace(subnet)
	if s, ok := strings.CutSuffix(subnet, "/24"); ok {
		subnet = strings.TrimSuffix(s, ".0")
	}
	parts := strings.Split(subnet, ".")
	if len(parts) == 4 && parts[3] == "0" {
		parts = parts[:3]
	}
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid /24 subnet %q", subnet)
	}
	for _, p := range parts {
		n := 0
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil || n < 0 || n > 255 || p != fmt.Sprint(n) {
			return "", fmt.Errorf("invalid /24 subnet %q", subnet)
		}
	}
	return strings.Join(parts, "."), nil
}
