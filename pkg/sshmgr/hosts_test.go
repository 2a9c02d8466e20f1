package sshmgr

import "testing"

func TestAddAndLookup(t *testing.T) {
	l := NewHostList()
	id := l.Add("10.0.0.5", 0)

	h, ok := l.Get(id)
	if !ok || h.Hostname != "10.0.0.5" || h.Port != 22 {
		t.Fatalf("host = %+v", h)
	}
	if !l.ContainsHostname("10.0.0.5") {
		t.Error("hostname lookup failed")
	}
	if l.Len() != 1 || l.IsEmpty() {
		t.Errorf("len = %d, empty = %v", l.Len(), l.IsEmpty())
	}

	// Re-adding the same hostname returns the existing id.
	if again := l.Add("10.0.0.5", 2222); again != id {
		t.Errorf("re-add id = %d, want %d", again, id)
	}
	if h, _ := l.Get(id); h.Port != 22 {
		t.Errorf("port = %d, re-add must not change it", h.Port)
	}
}

func TestRemoveClearsReferences(t *testing.T) {
	l := NewHostList()
	bastion := l.Add("bastion", 22)
	inner := l.Add("inner", 22)
	l.SetCredentials(bastion, Credentials{Username: "ops"})
	if err := l.SetJumpHost(inner, bastion); err != nil {
		t.Fatal(err)
	}

	l.Remove(bastion)
	if l.ContainsHostname("bastion") {
		t.Error("removed host still present")
	}
	if _, ok := l.GetCredentials(bastion); ok {
		t.Error("credentials survived removal")
	}
	h, _ := l.Get(inner)
	if h.JumpHostID != nil {
		t.Error("dangling jump reference after removal")
	}
}

func TestSetJumpHostRejectsCycles(t *testing.T) {
	l := NewHostList()
	a := l.Add("a", 22)
	b := l.Add("b", 22)
	c := l.Add("c", 22)

	if err := l.SetJumpHost(a, a); err == nil {
		t.Error("self-jump accepted")
	}
	if err := l.SetJumpHost(b, a); err != nil {
		t.Fatal(err)
	}
	if err := l.SetJumpHost(c, b); err != nil {
		t.Fatal(err)
	}
	// a -> c would close the loop a <- b <- c.
	if err := l.SetJumpHost(a, c); err == nil {
		t.Error("cycle accepted")
	}
	if err := l.SetJumpHost(a, 999); err == nil {
		t.Error("missing jump host accepted")
	}
}

func TestBuildJumpChainOutermostFirst(t *testing.T) {
	l := NewHostList()
	outer := l.Add("outer", 22)
	mid := l.Add("mid", 2200)
	target := l.Add("target", 22)
	l.SetJumpHost(mid, outer)
	l.SetJumpHost(target, mid)

	chain, err := l.BuildJumpChain(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain len = %d, want 2", len(chain))
	}
	if chain[0].Hostname != "outer" || chain[1].Hostname != "mid" {
		t.Errorf("chain = [%s %s], want outermost first", chain[0].Hostname, chain[1].Hostname)
	}

	if chain, err := l.BuildJumpChain(outer); err != nil || len(chain) != 0 {
		t.Errorf("no-jump chain = %v, %v", chain, err)
	}
	if _, err := l.BuildJumpChain(999); err == nil {
		t.Error("missing host accepted")
	}
}

func TestBuildSSHContext(t *testing.T) {
	l := NewHostList()
	outer := l.Add("outer", 22)
	target := l.Add("target", 2222)
	l.SetJumpHost(target, outer)
	l.SetCredentials(outer, Credentials{Username: "jump", Password: "jump-pw"})
	l.SetCredentials(target, Credentials{Username: "root", Password: "root-pw", KeyPath: "/k"})

	ctx, err := l.BuildSSHContext(target)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Username != "root" || ctx.Hostname != "target" || ctx.Port != 2222 || ctx.KeyPath != "/k" {
		t.Errorf("ctx = %+v", ctx)
	}
	if len(ctx.Jumps) != 1 || ctx.Jumps[0].Hostname != "outer" || ctx.Jumps[0].Password != "jump-pw" {
		t.Errorf("jumps = %+v", ctx.Jumps)
	}
	q := ctx.PasswordQueue()
	if len(q) != 2 || q[0] != "jump-pw" || q[1] != "root-pw" {
		t.Errorf("password queue = %v", q)
	}
}

func TestHostsInsertionOrder(t *testing.T) {
	l := NewHostList()
	l.Add("c", 22)
	l.Add("a", 22)
	l.Add("b", 22)
	hosts := l.Hosts()
	want := []string{"c", "a", "b"}
	for i, w := range want {
		if hosts[i].Hostname != w {
			t.Errorf("hosts[%d] = %s, want %s", i, hosts[i].Hostname, w)
		}
	}
}

func TestMarkConnected(t *testing.T) {
	l := NewHostList()
	id := l.Add("h", 22)
	l.MarkConnected(id)
	h, _ := l.Get(id)
	if h.Status != StatusAuthenticated || h.LastConnected.IsZero() {
		t.Errorf("host = %+v, want authenticated with timestamp", h)
	}
}
