// Package sshmgr holds the SSH host inventory: the host list with its
// credential map and jump chains, persistent storage with optional
// master-password encryption, network scanning, and ~/.ssh/config
// import.
package sshmgr

import (
	"fmt"
	"strings"
	"time"

	"ratterm/pkg/term"
)

// ConnectionStatus records what the scanner or a connection attempt
// last learned about a host.
type ConnectionStatus int

const (
	StatusUnknown ConnectionStatus = iota
	StatusReachable
	StatusUnreachable
	StatusAuthenticated
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusUnreachable:
		return "unreachable"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// SSHHost is one inventory entry. Credentials live out-of-band in the
// HostList keyed by ID.
type SSHHost struct {
	ID            uint32
	Hostname      string
	Port          int
	DisplayName   string
	JumpHostID    *uint32
	Status        ConnectionStatus
	LastConnected time.Time
}

// Label returns the display name when set, otherwise the hostname.
func (h SSHHost) Label() string {
	if h.DisplayName != "" {
		return h.DisplayName
	}
	return h.Hostname
}

// Credentials for one host.
type Credentials struct {
	Username   string
	Password   string
	KeyPath    string
	Passphrase string
	Save       bool
}

// HostList is the in-memory host inventory with O(1) lookup by id and
// by hostname. Not safe for concurrent use; the app owns it on its
// event loop.
type HostList struct {
	nextID     uint32
	hosts      map[uint32]*SSHHost
	byHostname map[string]uint32
	order      []uint32
	creds      map[uint32]Credentials
}

// NewHostList returns an empty inventory.
func NewHostList() *HostList {
	return &HostList{
		hosts:      make(map[uint32]*SSHHost),
		byHostname: make(map[string]uint32),
		creds:      make(map[uint32]Credentials),
	}
}

// Add inserts a host with the default port when port is zero and
// returns its id. Adding an already-present hostname returns the
// existing id.
func (l *HostList) Add(hostname string, port int) uint32 {
	return l.AddWithName(hostname, port, "")
}

// AddWithName is Add with an explicit display name.
func (l *HostList) AddWithName(hostname string, port int, displayName string) uint32 {
	hostname = strings.TrimSpace(hostname)
	if id, ok := l.byHostname[hostname]; ok {
		if displayName != "" {
			l.hosts[id].DisplayName = displayName
		}
		return id
	}
	if port <= 0 {
		port = 22
	}
	l.nextID++
	h := &SSHHost{
		ID:          l.nextID,
		Hostname:    hostname,
		Port:        port,
		DisplayName: displayName,
	}
	l.hosts[h.ID] = h
	l.byHostname[hostname] = h.ID
	l.order = append(l.order, h.ID)
	return h.ID
}

// Remove deletes a host and its credentials. Hosts pointing at it as a
// jump host lose the reference.
func (l *HostList) Remove(id uint32) {
	h, ok := l.hosts[id]
	if !ok {
		return
	}
	delete(l.hosts, id)
	delete(l.byHostname, h.Hostname)
	delete(l.creds, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	for _, other := range l.hosts {
		if other.JumpHostID != nil && *other.JumpHostID == id {
			other.JumpHostID = nil
		}
	}
}

// Get returns the host with id.
func (l *HostList) Get(id uint32) (SSHHost, bool) {
	h, ok := l.hosts[id]
	if !ok {
		return SSHHost{}, false
	}
	return *h, true
}

// GetByHostname returns the host with the exact hostname.
func (l *HostList) GetByHostname(hostname string) (SSHHost, bool) {
	id, ok := l.byHostname[strings.TrimSpace(hostname)]
	if !ok {
		return SSHHost{}, false
	}
	return *l.hosts[id], true
}

// ContainsHostname reports whether hostname is already present.
func (l *HostList) ContainsHostname(hostname string) bool {
	_, ok := l.byHostname[strings.TrimSpace(hostname)]
	return ok
}

// SetDisplayName renames a host in the UI sense.
func (l *HostList) SetDisplayName(id uint32, name string) {
	if h, ok := l.hosts[id]; ok {
		h.DisplayName = strings.TrimSpace(name)
	}
}

// SetJumpHost points host id at jump id. The jump must exist, must not
// be the host itself, and must not create a cycle. A nil-clearing
// variant is ClearJumpHost.
func (l *HostList) SetJumpHost(id, jumpID uint32) error {
	h, ok := l.hosts[id]
	if !ok {
		return fmt.Errorf("host %d not found", id)
	}
	if _, ok := l.hosts[jumpID]; !ok {
		return fmt.Errorf("jump host %d not found", jumpID)
	}
	if id == jumpID {
		return fmt.Errorf("host %d cannot jump through itself", id)
	}
	// Walk the chain from the proposed jump; reaching id again means a
	// cycle.
	seen := map[uint32]bool{id: true}
	cur := jumpID
	for {
		if seen[cur] {
			return fmt.Errorf("jump chain through host %d would form a cycle", jumpID)
		}
		seen[cur] = true
		next := l.hosts[cur].JumpHostID
		if next == nil {
			break
		}
		if _, ok := l.hosts[*next]; !ok {
			return fmt.Errorf("jump chain references missing host %d", *next)
		}
		cur = *next
	}
	j := jumpID
	h.JumpHostID = &j
	return nil
}

// ClearJumpHost removes host id's jump reference.
func (l *HostList) ClearJumpHost(id uint32) {
	if h, ok := l.hosts[id]; ok {
		h.JumpHostID = nil
	}
}

// MarkConnected records a successful connection.
func (l *HostList) MarkConnected(id uint32) {
	if h, ok := l.hosts[id]; ok {
		h.Status = StatusAuthenticated
		h.LastConnected = time.Now()
	}
}

// SetStatus records a scan result for the host.
func (l *HostList) SetStatus(id uint32, s ConnectionStatus) {
	if h, ok := l.hosts[id]; ok {
		h.Status = s
	}
}

// SetCredentials overwrites the credentials for host id.
func (l *HostList) SetCredentials(id uint32, c Credentials) {
	if _, ok := l.hosts[id]; ok {
		l.creds[id] = c
	}
}

// GetCredentials returns the stored credentials for host id.
func (l *HostList) GetCredentials(id uint32) (Credentials, bool) {
	c, ok := l.creds[id]
	return c, ok
}

// RemoveCredentials drops the credentials for host id.
func (l *HostList) RemoveCredentials(id uint32) {
	delete(l.creds, id)
}

// Hosts returns the hosts in insertion order.
func (l *HostList) Hosts() []SSHHost {
	out := make([]SSHHost, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.hosts[id])
	}
	return out
}

// Len reports the number of hosts.
func (l *HostList) Len() int { return len(l.order) }

// IsEmpty reports whether the inventory has no hosts.
func (l *HostList) IsEmpty() bool { return len(l.order) == 0 }

// BuildJumpChain walks jump_host pointers from host id outward and
// returns the chain ordered outermost-first (the hop farthest from the
// target leads). The target itself is not included. Cycles and missing
// references are errors.
func (l *HostList) BuildJumpChain(id uint32) ([]SSHHost, error) {
	h, ok := l.hosts[id]
	if !ok {
		return nil, fmt.Errorf("host %d not found", id)
	}
	var chain []SSHHost
	seen := map[uint32]bool{id: true}
	cur := h.JumpHostID
	for cur != nil {
		jump, ok := l.hosts[*cur]
		if !ok {
			return nil, fmt.Errorf("jump chain references missing host %d", *cur)
		}
		if seen[jump.ID] {
			return nil, fmt.Errorf("jump chain for host %d contains a cycle", id)
		}
		seen[jump.ID] = true
		// Nearest hop first while walking; reverse below for
		// outermost-first order.
		chain = append(chain, *jump)
		cur = jump.JumpHostID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// BuildSSHContext assembles the connection context for host id:
// target credentials plus the resolved jump chain with per-hop
// credentials, outermost hop first.
func (l *HostList) BuildSSHContext(id uint32) (term.SSHContext, error) {
	h, ok := l.hosts[id]
	if !ok {
		return term.SSHContext{}, fmt.Errorf("host %d not found", id)
	}
	chain, err := l.BuildJumpChain(id)
	if err != nil {
		return term.SSHContext{}, err
	}
	c := l.creds[id]
	ctx := term.SSHContext{
		Username: c.Username,
		Hostname: h.Hostname,
		Port:     uint16(h.Port),
		Password: c.Password,
		KeyPath:  c.KeyPath,
		HostID:   h.ID,
	}
	for _, hop := range chain {
		hc := l.creds[hop.ID]
		ctx.Jumps = append(ctx.Jumps, term.JumpHop{
			Username: hc.Username,
			Hostname: hop.Hostname,
			Port:     uint16(hop.Port),
			Password: hc.Password,
		})
	}
	return ctx, nil
}
