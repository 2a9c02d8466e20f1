package sshmgr

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `# personal hosts
Host web prod-web
    HostName web.example.com
    User deploy
    Port 2222
    IdentityFile ~/.ssh/deploy_key

Host db
    HostName db.internal
    User admin
    ProxyJump deploy@web.example.com:2222

Host *.example.com
    User nobody

Host plain
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSSHConfig(t *testing.T) {
	entries, err := LoadSSHConfig(writeConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	// web, prod-web, db, plain; the wildcard block is skipped.
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4: %+v", len(entries), entries)
	}

	web := entries[0]
	if web.Alias != "web" || web.HostName != "web.example.com" ||
		web.User != "deploy" || web.Port != 2222 ||
		web.IdentityFile != "~/.ssh/deploy_key" {
		t.Errorf("web = %+v", web)
	}
	if entries[1].Alias != "prod-web" || entries[1].HostName != "web.example.com" {
		t.Errorf("prod-web = %+v", entries[1])
	}

	db := entries[2]
	if db.ProxyJump != "deploy@web.example.com:2222" {
		t.Errorf("db proxyjump = %q", db.ProxyJump)
	}

	plain := entries[3]
	if plain.Alias != "plain" || plain.Target() != "plain" {
		t.Errorf("plain = %+v", plain)
	}
}

func TestImportEntries(t *testing.T) {
	entries, err := LoadSSHConfig(writeConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	l := NewHostList()
	l.Add("plain", 22) // already present, must be skipped

	// prod-web shares web's HostName and plain is already present, so
	// only web.example.com and db.internal are new.
	added := ImportEntries(l, entries)
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	web, ok := l.GetByHostname("web.example.com")
	if !ok || web.DisplayName != "web" || web.Port != 2222 {
		t.Fatalf("web = %+v", web)
	}
	c, ok := l.GetCredentials(web.ID)
	if !ok || c.Username != "deploy" || c.KeyPath != "~/.ssh/deploy_key" {
		t.Errorf("creds = %+v", c)
	}

	// db's ProxyJump resolves to the imported web host.
	db, _ := l.GetByHostname("db.internal")
	if db.JumpHostID == nil {
		t.Fatal("proxyjump not wired")
	}
	jump, _ := l.Get(*db.JumpHostID)
	if jump.Hostname != "web.example.com" {
		t.Errorf("jump = %s", jump.Hostname)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	entries, _ := LoadSSHConfig(writeConfig(t))
	l := NewHostList()
	ImportEntries(l, entries)
	if again := ImportEntries(l, entries); again != 0 {
		t.Errorf("second import added %d hosts", again)
	}
}
