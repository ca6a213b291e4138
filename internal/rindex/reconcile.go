package rindex

import (
	"bytes"

	"github.com/ralt/reposign/internal/models"
	"github.com/sirupsen/logrus"
)

// SigningKey is the part of a private key the reconciler needs
type SigningKey interface {
	PublicKeyPEM() ([]byte, error)
	BitSize() uint16
}

// Reconcile compares the persisted signing metadata against the active key
// and signer. It reports whether the metadata must be rewritten and, if so,
// the record to write. Any single difference forces a rewrite.
func Reconcile(key SigningKey, signedBy string, current *models.RepositorySigningMetadata) (bool, *models.RepositorySigningMetadata, error) {
	pubKey, err := key.PublicKeyPEM()
	if err != nil {
		return false, nil, err
	}
	pubKeySize := key.BitSize()

	flush := false
	if current == nil {
		logrus.Debug("Repository has no signing metadata")
		flush = true
	} else {
		if !bytes.Equal(current.PublicKey, pubKey) {
			logrus.Debug("Repository public key differs from active key")
			flush = true
		}
		if current.PublicKeySize != pubKeySize {
			logrus.Debugf("Repository public key size %d differs from %d", current.PublicKeySize, pubKeySize)
			flush = true
		}
		if current.SignedBy == "" || current.SignedBy != signedBy {
			logrus.Debugf("Repository signer %q differs from %q", current.SignedBy, signedBy)
			flush = true
		}
	}

	if !flush {
		return false, nil, nil
	}

	return true, &models.RepositorySigningMetadata{
		PublicKey:     pubKey,
		PublicKeySize: pubKeySize,
		SignedBy:      signedBy,
		SignatureType: models.SignatureTypeRSA,
	}, nil
}
