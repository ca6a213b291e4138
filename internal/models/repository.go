package models

import "bytes"

// SignatureTypeRSA is the only signature type written to repository metadata.
const SignatureTypeRSA = "rsa"

// RepositorySigningMetadata is the signing record persisted alongside a repository index
type RepositorySigningMetadata struct {
	PublicKey     []byte // PEM encoded
	PublicKeySize uint16 // modulus size in bits
	SignedBy      string
	SignatureType string
}

// Equal reports whether both records describe the same signing configuration.
func (m *RepositorySigningMetadata) Equal(o *RepositorySigningMetadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	return bytes.Equal(m.PublicKey, o.PublicKey) &&
		m.PublicKeySize == o.PublicKeySize &&
		m.SignedBy == o.SignedBy &&
		m.SignatureType == o.SignatureType
}

// RepoSignConfig contains configuration for signing a repository index
type RepoSignConfig struct {
	RepoDir        string
	PrivateKeyPath string // empty selects ~/.ssh/id_rsa
	SignedBy       string
	Compression    string
}

// PackageSignConfig contains configuration for signing package archives
type PackageSignConfig struct {
	Paths          []string
	PrivateKeyPath string
	Force          bool
}

// IndexConfig contains configuration for rebuilding a repository index
type IndexConfig struct {
	RepoDir     string
	Compression string
}
