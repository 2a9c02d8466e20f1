package sshmgr

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
)

func seedList() *HostList {
	l := NewHostList()
	bastion := l.Add("bastion.lan", 22)
	db := l.AddWithName("db.lan", 2222, "database")
	l.SetJumpHost(db, bastion)
	l.SetCredentials(db, Credentials{
		Username: "admin",
		Password: "s3cret",
		KeyPath:  "~/.ssh/id_ed25519",
		Save:     true,
	})
	// Unsaved credentials must not be persisted.
	l.SetCredentials(bastion, Credentials{Username: "ops", Password: "temp", Save: false})
	return l
}

func TestPlaintextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	if err := s.Save(seedList()); err != nil {
		t.Fatal(err)
	}

	loaded, err := NewStorage(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("len = %d, want 2", loaded.Len())
	}
	db, ok := loaded.GetByHostname("db.lan")
	if !ok || db.Port != 2222 || db.DisplayName != "database" {
		t.Fatalf("db = %+v", db)
	}
	c, ok := loaded.GetCredentials(db.ID)
	if !ok || c.Username != "admin" || c.Password != "s3cret" {
		t.Fatalf("creds = %+v", c)
	}
	if db.JumpHostID == nil {
		t.Fatal("jump host not restored")
	}
	jump, _ := loaded.Get(*db.JumpHostID)
	if jump.Hostname != "bastion.lan" {
		t.Errorf("jump = %s", jump.Hostname)
	}
	if _, ok := loaded.GetCredentials(jump.ID); ok {
		t.Error("unsaved credentials were persisted")
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l, err := NewStorage(t.TempDir()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsEmpty() {
		t.Error("expected empty list")
	}
}

func TestMasterPasswordEncryptsOnDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	if err := s.SetMasterPassword("hunter2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(seedList()); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if strings.Contains(text, "s3cret") {
		t.Error("plaintext password on disk in masterpass mode")
	}
	if !strings.Contains(text, "enc:") {
		t.Error("encrypted marker missing")
	}
	if !strings.Contains(text, "storage_mode: masterpass") {
		t.Error("storage_mode not recorded")
	}
	// Hostnames stay readable so the list loads while locked.
	if !strings.Contains(text, "db.lan") {
		t.Error("hostname should not be encrypted")
	}
}

func TestMasterPasswordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	s.SetMasterPassword("hunter2")
	if err := s.Save(seedList()); err != nil {
		t.Fatal(err)
	}

	// Fresh storage: load is locked until the password arrives.
	s2 := NewStorage(dir)
	if _, err := s2.Load(); !errors.Is(err, ErrMasterPasswordRequired) {
		t.Fatalf("err = %v, want ErrMasterPasswordRequired", err)
	}
	if s2.Unlocked() {
		t.Error("storage reports unlocked without a key")
	}

	// The failed load captured the salt, so the same password derives
	// the same key.
	if err := s2.SetMasterPassword("hunter2"); err != nil {
		t.Fatal(err)
	}
	loaded, err := s2.Load()
	if err != nil {
		t.Fatal(err)
	}
	db, _ := loaded.GetByHostname("db.lan")
	c, _ := loaded.GetCredentials(db.ID)
	if c.Password != "s3cret" {
		t.Errorf("password = %q, want decrypted", c.Password)
	}
}

func TestWrongMasterPassword(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	s.SetMasterPassword("right")
	if err := s.Save(seedList()); err != nil {
		t.Fatal(err)
	}

	s2 := NewStorage(dir)
	s2.Load() // captures salt
	s2.SetMasterPassword("wrong")
	if _, err := s2.Load(); !errors.Is(err, ErrWrongMasterPassword) {
		t.Fatalf("err = %v, want ErrWrongMasterPassword", err)
	}
}

func TestSavePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}
	dir := t.TempDir()
	s := NewStorage(dir)
	if err := s.Save(seedList()); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 0600", fi.Mode().Perm())
	}
}

func TestOversizedFileRejected(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	big := make([]byte, maxHostsFileSize+1)
	if err := os.WriteFile(s.Path(), big, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Error("oversized file accepted")
	}
}
