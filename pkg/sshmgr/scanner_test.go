package sshmgr

import (
	"net"
	"testing"
	"time"
)

// drain collects every event of a finished scan, polling like the app
// frame loop does.
func drain(t *testing.T, s *Scanner, timeout time.Duration) []ScanEvent {
	t.Helper()
	var events []ScanEvent
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		e, ok := s.Poll()
		if !ok {
			select {
			case e, open := <-s.events:
				if !open {
					return events
				}
				events = append(events, e)
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		events = append(events, e)
	}
	t.Fatalf("scan did not finish; got %d events", len(events))
	return nil
}

func listenLoopback(t *testing.T, addr string) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", addr+":0")
	if err != nil {
		t.Skipf("cannot listen on %s: %v", addr, err)
	}
	t.Cleanup(func() { ln.Close() })
	return addr, ln.Addr().(*net.TCPAddr).Port
}

func TestReachabilityScanStream(t *testing.T) {
	ip1, p1 := listenLoopback(t, "127.0.0.1")
	ip2, p2 := listenLoopback(t, "127.0.0.2")

	hosts := []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"}
	s := startScan(hosts, []int{p1, p2}, 500*time.Millisecond, nil)
	events := drain(t, s, 10*time.Second)
	s.Wait()

	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Kind != EventComplete {
		t.Fatalf("last event kind = %v, want Complete", last.Kind)
	}
	terminals := 0
	var found []FoundHost
	for _, e := range events {
		if e.Terminal() {
			terminals++
		}
		if e.Kind == EventHostFound {
			found = append(found, e.Host)
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminals)
	}

	if len(last.Hosts) != 2 {
		t.Fatalf("complete hosts = %+v, want 2", last.Hosts)
	}
	if last.Hosts[0].IP != ip1 || last.Hosts[0].Port != p1 {
		t.Errorf("hosts[0] = %+v, want %s:%d", last.Hosts[0], ip1, p1)
	}
	if last.Hosts[1].IP != ip2 || last.Hosts[1].Port != p2 {
		t.Errorf("hosts[1] = %+v, want %s:%d", last.Hosts[1], ip2, p2)
	}
	if len(found) != 2 {
		t.Errorf("HostFound events = %d, want 2", len(found))
	}
}

func TestScanProgressReachesTotal(t *testing.T) {
	hosts := []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"}
	// A closed port: dial fails fast on loopback.
	s := startScan(hosts, []int{1}, 200*time.Millisecond, nil)
	events := drain(t, s, 10*time.Second)
	s.Wait()

	sawFinal := false
	for _, e := range events {
		if e.Kind == EventProgress && e.Scanned == len(hosts) && e.Total == len(hosts) {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("no final Progress event covering the whole sweep")
	}
	last := events[len(events)-1]
	if last.Kind != EventComplete || len(last.Hosts) != 0 {
		t.Errorf("last = %+v, want empty Complete", last)
	}
}

func TestCancelEndsWithSingleTerminal(t *testing.T) {
	hosts := make([]string, 0, 50)
	for i := 1; i <= 50; i++ {
		hosts = append(hosts, "127.0.0.1")
	}
	s := startScan(hosts, []int{1}, 200*time.Millisecond, nil)
	s.Cancel()
	s.Wait()

	var events []ScanEvent
	for {
		e, ok := <-s.events
		if !ok {
			break
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		t.Fatal("no events")
	}
	terminals := 0
	for i, e := range events {
		if e.Terminal() {
			terminals++
			if i != len(events)-1 {
				t.Error("terminal event not last")
			}
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminals)
	}
}

func TestParseSubnet(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"192.168.1.0/24", "192.168.1", true},
		{"192.168.1", "192.168.1", true},
		{"10.0.0.0", "10.0.0", true},
		{" 172.16.5.0/24 ", "172.16.5", true},
		{"192.168.1.5", "", false},
		{"192.168", "", false},
		{"a.b.c", "", false},
		{"300.1.1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseSubnet(tt.in)
		if tt.ok != (err == nil) || got != tt.want {
			t.Errorf("ParseSubnet(%q) = (%q,%v), want (%q, ok=%v)", tt.in, got, err, tt.want, tt.ok)
		}
	}
}

func TestEnumerateSubnetSkipsNetworkAndBroadcast(t *testing.T) {
	hosts, err := EnumerateSubnet("10.1.2.0/24")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != MaxHosts {
		t.Fatalf("len = %d, want %d", len(hosts), MaxHosts)
	}
	if hosts[0] != "10.1.2.1" || hosts[len(hosts)-1] != "10.1.2.254" {
		t.Errorf("range = %s..%s", hosts[0], hosts[len(hosts)-1])
	}
}
