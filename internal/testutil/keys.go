// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	keyOnce sync.Once
	keys    [2]*rsa.PrivateKey
	keyErr  error
)

// RSAKey returns one of two cached 2048-bit test keys (index 0 or 1)
func RSAKey(t testing.TB, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		for n := range keys {
			keys[n], keyErr = rsa.GenerateKey(rand.Reader, 2048)
			if keyErr != nil {
				return
			}
		}
	})
	if keyErr != nil {
		t.Fatalf("Failed to generate RSA key: %v", keyErr)
	}
	return keys[i]
}

// WriteFile writes data to dir/name and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// PKCS1PEM encodes key as an unencrypted "RSA PRIVATE KEY" block
func PKCS1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// WriteKey writes key as PKCS1 PEM to dir/name and returns the path
func WriteKey(t testing.TB, dir, name string, key *rsa.PrivateKey) string {
	t.Helper()
	return WriteFile(t, dir, name, PKCS1PEM(key))
}

// CopyKey returns an independent copy of key, safe to Destroy
func CopyKey(t testing.TB, key *rsa.PrivateKey) *rsa.PrivateKey {
	t.Helper()
	c, err := x509.ParsePKCS1PrivateKey(x509.MarshalPKCS1PrivateKey(key))
	if err != nil {
		t.Fatalf("Failed to copy key: %v", err)
	}
	return c
}
