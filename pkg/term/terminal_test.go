package term

import "testing"

func TestInterceptCommandGrammar(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"open", "open", true},
		{"update", "update", true},
		{"open main.go", "open main.go", true},
		{"open /etc/hosts", "open /etc/hosts", true},
		{"open  spaced  ", "open spaced", true},
		{"open ", "", false},
		{"opened", "", false},
		{"updates", "", false},
		{"ls -la", "", false},
		{"", "", false},
		{"echo open", "", false},
	}
	for _, tt := range tests {
		got, ok := interceptCommand(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("interceptCommand(%q) = (%q,%v), want (%q,%v)",
				tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSSHContextDisplayString(t *testing.T) {
	tests := []struct {
		ctx  SSHContext
		want string
	}{
		{SSHContext{Username: "alice", Hostname: "box"}, "alice@box"},
		{SSHContext{Username: "alice", Hostname: "box", Port: 22}, "alice@box"},
		{SSHContext{Username: "alice", Hostname: "box", Port: 2222}, "alice@box:2222"},
	}
	for _, tt := range tests {
		if got := tt.ctx.DisplayString(); got != tt.want {
			t.Errorf("DisplayString() = %q, want %q", got, tt.want)
		}
	}
}

func TestSSHContextJumpSpec(t *testing.T) {
	ctx := SSHContext{
		Username: "u",
		Hostname: "target",
		Jumps: []JumpHop{
			{Username: "a", Hostname: "outer", Port: 22},
			{Username: "b", Hostname: "inner", Port: 2200},
		},
	}
	if got := ctx.JumpSpec(); got != "a@outer,b@inner:2200" {
		t.Errorf("JumpSpec() = %q", got)
	}
	if got := (SSHContext{}).JumpSpec(); got != "" {
		t.Errorf("empty JumpSpec() = %q, want empty", got)
	}
}

// Password answers must line up with the hop order on the wire:
// outermost jump first, target last.
func TestSSHContextPasswordQueue(t *testing.T) {
	ctx := SSHContext{
		Username: "u",
		Hostname: "target",
		Password: "target-pw",
		Jumps: []JumpHop{
			{Hostname: "outer", Password: "outer-pw"},
			{Hostname: "inner", Password: "inner-pw"},
		},
	}
	q := ctx.PasswordQueue()
	want := []string{"outer-pw", "inner-pw", "target-pw"}
	if len(q) != len(want) {
		t.Fatalf("queue = %v, want %v", q, want)
	}
	for i := range want {
		if q[i] != want[i] {
			t.Errorf("queue[%d] = %q, want %q", i, q[i], want[i])
		}
	}
}

func TestPasswordPromptDetection(t *testing.T) {
	tests := []struct {
		tail string
		want bool
	}{
		{"alice@box's password: ", true},
		{"Password:", true},
		{"Passphrase: ", true},
		{"wrong password, try again\n$ ", false},
		{"$ ", false},
	}
	for _, tt := range tests {
		if got := passwordPromptRe.MatchString(tt.tail); got != tt.want {
			t.Errorf("prompt match %q = %v, want %v", tt.tail, got, tt.want)
		}
	}
}

func TestCursorShapeFromParam(t *testing.T) {
	tests := []struct {
		param int
		want  CursorShape
	}{
		{0, CursorShapeBlock},
		{1, CursorShapeBlock},
		{2, CursorShapeBlock},
		{3, CursorShapeUnderline},
		{4, CursorShapeUnderline},
		{5, CursorShapeBar},
		{6, CursorShapeBar},
	}
	for _, tt := range tests {
		if got := cursorShapeFromParam(tt.param); got != tt.want {
			t.Errorf("shape(%d) = %v, want %v", tt.param, got, tt.want)
		}
	}
}
