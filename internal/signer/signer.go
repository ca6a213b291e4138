package signer

import "github.com/opencontainers/go-digest"

// FileSigner signs repository files
type FileSigner interface {
	// SignFile digests the file at path and signs the digest
	SignFile(path string) (*Signature, error)

	// SignDigest signs an already computed digest
	SignDigest(d digest.Digest) (*Signature, error)

	// PublicKeyPEM returns the public key in PEM format
	PublicKeyPEM() ([]byte, error)

	// BitSize returns the key size in bits
	BitSize() uint16
}

// KeyLoader loads a private key from a path, or the default location when path is empty
type KeyLoader interface {
	Load(path string) (*PrivateKey, error)
}

var (
	_ FileSigner = (*PrivateKey)(nil)
	_ KeyLoader  = (*Loader)(nil)
)
