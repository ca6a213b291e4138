package rindex

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/signer"
	"github.com/ralt/reposign/internal/testutil"
	"github.com/ralt/reposign/internal/utils"
)

const testArch = "x86_64"

// newRepo writes a repodata archive with n packages into a fresh directory
func newRepo(t *testing.T, n int) (string, *repository.FileStore) {
	t.Helper()
	dir := t.TempDir()
	store := repository.NewFileStore(testArch)

	idx, err := store.OpenOrEmpty(dir)
	require.NoError(t, err)

	var pkgs []models.Package
	for i := 0; i < n; i++ {
		pkgs = append(pkgs, models.Package{
			Name:         fmt.Sprintf("pkg%d", i),
			Version:      fmt.Sprintf("pkg%d-1.0_1", i),
			Architecture: testArch,
			Filename:     fmt.Sprintf("pkg%d-1.0_1.%s.xbps", i, testArch),
		})
	}
	require.NoError(t, idx.Flush(pkgs, nil, utils.CompressionZstd))
	return dir, store
}

// keyFile writes fixture key i and returns its path
func keyFile(t *testing.T, i int) string {
	t.Helper()
	return testutil.WriteKey(t, t.TempDir(), "id_rsa", testutil.RSAKey(t, i))
}

func loader() *signer.Loader {
	return signer.NewLoader(signer.StaticPassphrase(""))
}

// fakeStore records how the signer drives the repository collaborator
type fakeStore struct {
	idx      *fakeIndex
	openErr  error
	lockErr  error
	locked   bool
	locks    int
	unlocks  int
	lockPath func() (repository.Lock, error)
}

func (s *fakeStore) Open(string) (repository.Index, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.idx.store = s
	return s.idx, nil
}

func (s *fakeStore) Lock(string) (repository.Lock, error) {
	s.locks++
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	s.locked = true
	var inner repository.Lock
	if s.lockPath != nil {
		l, err := s.lockPath()
		if err != nil {
			return nil, err
		}
		inner = l
	}
	return fakeLock{s, inner}, nil
}

type fakeLock struct {
	s     *fakeStore
	inner repository.Lock
}

func (l fakeLock) Unlock() error {
	l.s.unlocks++
	l.s.locked = false
	if l.inner != nil {
		return l.inner.Unlock()
	}
	return nil
}

type fakeIndex struct {
	store    *fakeStore
	packages []models.Package
	meta     *models.RepositorySigningMetadata
	flushErr error
	flushes  int
}

func (i *fakeIndex) Packages() []models.Package { return i.packages }
func (i *fakeIndex) PackageCount() int          { return len(i.packages) }
func (i *fakeIndex) SigningMetadata() *models.RepositorySigningMetadata {
	return i.meta
}

func (i *fakeIndex) Flush(packages []models.Package, meta *models.RepositorySigningMetadata, _ utils.Compression) error {
	i.flushes++
	if !i.store.locked {
		return errors.New("flush without lock")
	}
	if i.flushErr != nil {
		return i.flushErr
	}
	i.packages = packages
	i.meta = meta
	return nil
}
