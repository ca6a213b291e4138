// Package rindex implements the repository index workflows: signing the
// index metadata, signing package archives and rebuilding the index.
package rindex

import (
	"fmt"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/signer"
	"github.com/ralt/reposign/internal/utils"
	"github.com/sirupsen/logrus"
)

// Signer runs signing workflows against a repository store
type Signer struct {
	store repository.Store
	keys  signer.KeyLoader
}

// NewSigner creates a Signer
func NewSigner(store repository.Store, keys signer.KeyLoader) *Signer {
	return &Signer{store: store, keys: keys}
}

// RepoResult describes the outcome of SignRepository
type RepoResult struct {
	Packages int
	// Flushed is false when the metadata already matched and nothing was written
	Flushed bool
}

// String renders the result for the operator
func (r RepoResult) String() string {
	if r.Flushed {
		return fmt.Sprintf("Initialized signed repository (%s)", Plural(r.Packages, "package"))
	}
	return fmt.Sprintf("Repository already signed (%s)", Plural(r.Packages, "package"))
}

// SignRepository makes sure the repository metadata in config.RepoDir names
// the active key and signer, rewriting it under the write lock if not.
func (s *Signer) SignRepository(config *models.RepoSignConfig) (*RepoResult, error) {
	if config.SignedBy == "" {
		return nil, models.NewError(models.ErrConfig, "", models.ErrMissingSigner, nil)
	}

	compression, err := utils.ParseCompression(config.Compression)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", models.ErrInvalidCompression, err)
	}

	idx, err := s.store.Open(config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoUnreadable, err)
	}
	count := idx.PackageCount()
	if count == 0 {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoEmpty, nil)
	}

	key, err := s.keys.Load(config.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	flush, _, err := Reconcile(key, config.SignedBy, idx.SigningMetadata())
	if err != nil {
		return nil, models.NewError(models.ErrKeyLoad, key.Path(), models.ErrKeyInvalidFormat, err)
	}
	if !flush {
		logrus.Infof("Repository signing metadata is up to date in %s", config.RepoDir)
		return &RepoResult{Packages: count}, nil
	}

	return s.flushLocked(config, key, compression)
}

// flushLocked re-reads the index under the repository write lock, so changes
// made since the first read are kept, and writes the reconciled metadata.
// The lock is released before returning on every path.
func (s *Signer) flushLocked(config *models.RepoSignConfig, key *signer.PrivateKey, c utils.Compression) (*RepoResult, error) {
	lock, err := s.store.Lock(config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrLockFailed, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			logrus.Warnf("Failed to release repository lock: %v", uerr)
		}
	}()

	idx, err := s.store.Open(config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoUnreadable, err)
	}
	count := idx.PackageCount()
	if count == 0 {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoEmpty, nil)
	}

	flush, meta, err := Reconcile(key, config.SignedBy, idx.SigningMetadata())
	if err != nil {
		return nil, models.NewError(models.ErrKeyLoad, key.Path(), models.ErrKeyInvalidFormat, err)
	}
	if !flush {
		logrus.Infof("Repository signing metadata was updated concurrently in %s", config.RepoDir)
		return &RepoResult{Packages: count}, nil
	}

	logrus.Infof("Updating repository signing metadata (signed by %s, %d-bit key)", meta.SignedBy, meta.PublicKeySize)
	if err := idx.Flush(idx.Packages(), meta, c); err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrFlushFailed, err)
	}
	return &RepoResult{Packages: count, Flushed: true}, nil
}

// Plural formats n with unit, adding an "s" unless n is 1
func Plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
