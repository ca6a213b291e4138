package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/ralt/reposign/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// PassphraseEnv is the environment variable consulted for the key passphrase
const PassphraseEnv = "XBPS_PASSPHRASE"

// DefaultKeyPath is the private key location relative to the home directory
var DefaultKeyPath = filepath.Join(".ssh", "id_rsa")

// PassphraseProvider supplies an optional passphrase for encrypted keys
type PassphraseProvider interface {
	// Passphrase returns the passphrase and whether one is set
	Passphrase() (string, bool)
}

// EnvPassphrase reads the passphrase from the named environment variable
type EnvPassphrase string

// Passphrase implements PassphraseProvider
func (e EnvPassphrase) Passphrase() (string, bool) {
	p, ok := os.LookupEnv(string(e))
	return p, ok && p != ""
}

// StaticPassphrase is a fixed passphrase; empty means none
type StaticPassphrase string

// Passphrase implements PassphraseProvider
func (s StaticPassphrase) Passphrase() (string, bool) {
	return string(s), s != ""
}

// PrivateKey is an RSA private key loaded for the duration of one signing operation
type PrivateKey struct {
	key     *rsa.PrivateKey
	path    string
	destroy sync.Once
}

// NewPrivateKey wraps an already parsed RSA key
func NewPrivateKey(key *rsa.PrivateKey) *PrivateKey {
	return &PrivateKey{key: key}
}

// Path returns the file the key was loaded from, if any
func (k *PrivateKey) Path() string {
	return k.path
}

// BitSize returns the modulus size in bits
func (k *PrivateKey) BitSize() uint16 {
	if k.key == nil {
		return 0
	}
	return uint16(k.key.Size() * 8)
}

// PublicKeyPEM returns the public key as a PEM "PUBLIC KEY" (PKIX) block
func (k *PrivateKey) PublicKeyPEM() ([]byte, error) {
	if k.key == nil {
		return nil, errors.New("key has been destroyed")
	}

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&k.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	block := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	}

	return pem.EncodeToMemory(block), nil
}

// PublicKey returns the RSA public key
func (k *PrivateKey) PublicKey() *rsa.PublicKey {
	if k.key == nil {
		return nil
	}
	return &k.key.PublicKey
}

// Destroy zeroes the exported private components (D, primes, CRT values) and
// drops the key. Copies held inside the crypto/rsa precomputed state are
// released, not zeroed. Safe to call more than once.
func (k *PrivateKey) Destroy() {
	k.destroy.Do(func() {
		if k.key == nil {
			return
		}
		zero(k.key.D)
		for _, p := range k.key.Primes {
			zero(p)
		}
		zero(k.key.Precomputed.Dp)
		zero(k.key.Precomputed.Dq)
		zero(k.key.Precomputed.Qinv)
		k.key.Precomputed = rsa.PrecomputedValues{}
		k.key = nil
	})
}

func zero(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}

// Loader loads PEM encoded RSA private keys from disk
type Loader struct {
	Passphrase PassphraseProvider
	// HomeDir resolves the home directory for the default key path; os.UserHomeDir if nil
	HomeDir func() (string, error)
}

// NewLoader creates a loader using the given passphrase source; nil means the environment
func NewLoader(passphrase PassphraseProvider) *Loader {
	if passphrase == nil {
		passphrase = EnvPassphrase(PassphraseEnv)
	}
	return &Loader{Passphrase: passphrase}
}

// ResolvePath returns path, or ~/.ssh/id_rsa when path is empty
func (l *Loader) ResolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	homeDir := l.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return "", models.NewError(models.ErrKeyLoad, "", models.ErrNoHome, err)
	}
	return filepath.Join(home, DefaultKeyPath), nil
}

// Load reads the private key at path (or the default location)
func (l *Loader) Load(path string) (*PrivateKey, error) {
	keyPath, err := l.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, models.NewError(models.ErrKeyLoad, keyPath, models.ErrKeyUnreadable, err)
	}

	var passphrase string
	if l.Passphrase != nil {
		passphrase, _ = l.Passphrase.Passphrase()
	}

	key, err := parseRSAPrivateKey(keyData, passphrase)
	if err != nil {
		return nil, models.NewError(models.ErrKeyLoad, keyPath, models.ErrKeyInvalidFormat, err)
	}

	logrus.Debugf("Loaded %d-bit RSA key from %s", key.Size()*8, keyPath)
	return &PrivateKey{key: key, path: keyPath}, nil
}

// parseRSAPrivateKey parses PKCS1, PKCS8 or OpenSSH keys, decrypting with
// passphrase when the key is encrypted. A passphrase given for an
// unencrypted key is ignored.
func parseRSAPrivateKey(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	raw, err := ssh.ParseRawPrivateKey(data)

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if passphrase == "" {
			return nil, errors.New("key is encrypted but no passphrase provided")
		}
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key (%T)", raw)
	}

	return rsaKey, nil
}
