package sshmgr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"
	"gopkg.in/yaml.v3"
)

const (
	hostsFilename = "hosts.yaml"

	// maxHostsFileSize guards against loading a corrupt or hostile
	// file into memory.
	maxHostsFileSize = 1 << 20

	// encPrefix marks an encrypted password value.
	encPrefix = "enc:"

	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keyLen  = 32
	saltLen = 16
)

// ErrMasterPasswordRequired is returned by Load when the file is in
// masterpass mode and no key has been supplied yet.
var ErrMasterPasswordRequired = errors.New("master password required")

// ErrWrongMasterPassword is returned when decryption fails, which in
// GCM means the password did not derive the right key.
var ErrWrongMasterPassword = errors.New("wrong master password")

// StorageMode selects how credential passwords are persisted.
type StorageMode string

const (
	ModePlaintext  StorageMode = "plaintext"
	ModeMasterPass StorageMode = "masterpass"
)

// hostsFile is the on-disk YAML document.
type hostsFile struct {
	Settings storedSettings `yaml:"settings"`
	Hosts    []storedHost   `yaml:"hosts"`
}

type storedSettings struct {
	StorageMode StorageMode `yaml:"storage_mode"`
	Salt        string      `yaml:"salt,omitempty"`
}

type storedHost struct {
	Hostname      string             `yaml:"hostname"`
	Port          int                `yaml:"port,omitempty"`
	DisplayName   string             `yaml:"display_name,omitempty"`
	JumpHost      string             `yaml:"jump_host,omitempty"`
	LastConnected string             `yaml:"last_connected,omitempty"`
	Credentials   *storedCredentials `yaml:"credentials,omitempty"`
}

type storedCredentials struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password,omitempty"`
	KeyPath    string `yaml:"key_path,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// Storage persists a HostList to hosts.yaml under the config dir. In
// masterpass mode each credential password is encrypted individually
// with AES-256-GCM under a scrypt-derived key; everything else stays
// readable so the host list loads without the password.
type Storage struct {
	path string
	mode StorageMode
	salt []byte
	key  []byte
}

// NewStorage builds a storage rooted at dir.
func NewStorage(dir string) *Storage {
	return &Storage{
		path: filepath.Join(dir, hostsFilename),
		mode: ModePlaintext,
	}
}

// Path returns the hosts file path.
func (s *Storage) Path() string { return s.path }

// Mode returns the active storage mode.
func (s *Storage) Mode() StorageMode { return s.mode }

// Unlocked reports whether credentials can be decrypted: always true
// in plaintext mode, true after SetMasterPassword in masterpass mode.
func (s *Storage) Unlocked() bool {
	return s.mode == ModePlaintext || s.key != nil
}

// SetMasterPassword switches to masterpass mode, deriving the key from
// password. A fresh salt is generated when none was loaded.
func (s *Storage) SetMasterPassword(password string) error {
	if s.salt == nil {
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		s.salt = salt
	}
	key, err := scrypt.Key([]byte(password), s.salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	s.mode = ModeMasterPass
	s.key = key
	return nil
}

// DisableMasterPassword returns to plaintext mode. The caller should
// Save afterwards to rewrite passwords in the clear.
func (s *Storage) DisableMasterPassword() {
	s.mode = ModePlaintext
	s.key = nil
	s.salt = nil
}

// Save writes the host list and credentials atomically with 0600
// permissions.
func (s *Storage) Save(list *HostList) error {
	doc := hostsFile{
		Settings: storedSettings{StorageMode: s.mode},
	}
	if s.mode == ModeMasterPass {
		if s.key == nil {
			return ErrMasterPasswordRequired
		}
		doc.Settings.Salt = base64.StdEncoding.EncodeToString(s.salt)
	}

	for _, h := range list.Hosts() {
		sh := storedHost{
			Hostname:    h.Hostname,
			Port:        h.Port,
			DisplayName: h.DisplayName,
		}
		if h.JumpHostID != nil {
			if jump, ok := list.Get(*h.JumpHostID); ok {
				sh.JumpHost = jump.Hostname
			}
		}
		if !h.LastConnected.IsZero() {
			sh.LastConnected = h.LastConnected.UTC().Format(time.RFC3339)
		}
		if c, ok := list.GetCredentials(h.ID); ok && c.Save {
			sc := &storedCredentials{
				Username: c.Username,
				KeyPath:  c.KeyPath,
			}
			pw, err := s.sealPassword(c.Password)
			if err != nil {
				return err
			}
			sc.Password = pw
			pp, err := s.sealPassword(c.Passphrase)
			if err != nil {
				return err
			}
			sc.Passphrase = pp
			sh.Credentials = sc
		}
		doc.Hosts = append(doc.Hosts, sh)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal hosts: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o600)
}

// Load reads hosts.yaml into a fresh HostList. In masterpass mode with
// no key set it returns ErrMasterPasswordRequired; callers keep their
// current in-memory list in that case. A missing file yields an empty
// list.
func (s *Storage) Load() (*HostList, error) {
	list := NewHostList()

	fi, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return list, nil
		}
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if fi.Size() > maxHostsFileSize {
		return nil, fmt.Errorf("hosts file %s exceeds %d bytes", s.path, maxHostsFileSize)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc hostsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	if doc.Settings.StorageMode == ModeMasterPass {
		salt, err := base64.StdEncoding.DecodeString(doc.Settings.Salt)
		if err != nil {
			return nil, fmt.Errorf("parse %s: bad salt: %w", s.path, err)
		}
		s.salt = salt
		s.mode = ModeMasterPass
		if s.key == nil {
			return nil, ErrMasterPasswordRequired
		}
	} else {
		s.mode = ModePlaintext
	}

	// First pass creates hosts so jump references can resolve in any
	// order on the second pass.
	for _, sh := range doc.Hosts {
		id := list.AddWithName(sh.Hostname, sh.Port, sh.DisplayName)
		if sh.LastConnected != "" {
			if ts, err := time.Parse(time.RFC3339, sh.LastConnected); err == nil {
				list.hosts[id].LastConnected = ts
			}
		}
		if sh.Credentials != nil {
			pw, err := s.openPassword(sh.Credentials.Password)
			if err != nil {
				return nil, err
			}
			pp, err := s.openPassword(sh.Credentials.Passphrase)
			if err != nil {
				return nil, err
			}
			list.SetCredentials(id, Credentials{
				Username:   sh.Credentials.Username,
				Password:   pw,
				KeyPath:    sh.Credentials.KeyPath,
				Passphrase: pp,
				Save:       true,
			})
		}
	}
	for _, sh := range doc.Hosts {
		if sh.JumpHost == "" {
			continue
		}
		h, _ := list.GetByHostname(sh.Hostname)
		jump, ok := list.GetByHostname(sh.JumpHost)
		if !ok {
			continue
		}
		if err := list.SetJumpHost(h.ID, jump.ID); err != nil {
			return nil, fmt.Errorf("parse %s: host %s: %w", s.path, sh.Hostname, err)
		}
	}
	return list, nil
}

// sealPassword encrypts pw in masterpass mode, marking the value with
// the enc: prefix. Empty passwords stay empty.
func (s *Storage) sealPassword(pw string) (string, error) {
	if pw == "" || s.mode != ModeMasterPass {
		return pw, nil
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(pw), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// openPassword reverses sealPassword. Values without the enc: prefix
// pass through, so plaintext files load under any mode.
func (s *Storage) openPassword(v string) (string, error) {
	if !strings.HasPrefix(v, encPrefix) {
		return v, nil
	}
	if s.key == nil {
		return "", ErrMasterPasswordRequired
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("decrypt password: ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	pw, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrWrongMasterPassword
	}
	return string(pw), nil
}

// writeFileAtomic writes data to a temp file in the target directory
// and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d-%d", os.Getpid(), time.Now().UnixNano()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
