package rindex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/utils"
)

const signedBy = "Void Builder <builder@example.org>"

func TestSignRepositoryInitializes(t *testing.T) {
	dir, store := newRepo(t, 3)
	s := NewSigner(store, loader())

	result, err := s.SignRepository(&models.RepoSignConfig{
		RepoDir:        dir,
		PrivateKeyPath: keyFile(t, 0),
		SignedBy:       signedBy,
	})
	require.NoError(t, err)
	assert.True(t, result.Flushed)
	assert.Equal(t, 3, result.Packages)
	assert.Equal(t, "Initialized signed repository (3 packages)", result.String())

	idx, err := store.Open(dir)
	require.NoError(t, err)
	meta := idx.SigningMetadata()
	require.NotNil(t, meta)
	assert.Equal(t, signedBy, meta.SignedBy)
	assert.Equal(t, uint16(2048), meta.PublicKeySize)
	assert.Equal(t, "rsa", meta.SignatureType)
	assert.Contains(t, string(meta.PublicKey), "BEGIN PUBLIC KEY")
	assert.Equal(t, 3, idx.PackageCount())
}

func TestSignRepositoryIdempotent(t *testing.T) {
	dir, store := newRepo(t, 1)
	s := NewSigner(store, loader())
	config := &models.RepoSignConfig{
		RepoDir:        dir,
		PrivateKeyPath: keyFile(t, 0),
		SignedBy:       signedBy,
	}

	_, err := s.SignRepository(config)
	require.NoError(t, err)

	repodata := store.RepodataPath(dir)
	before, err := os.ReadFile(repodata)
	require.NoError(t, err)
	beforeInfo, err := os.Stat(repodata)
	require.NoError(t, err)

	result, err := s.SignRepository(config)
	require.NoError(t, err)
	assert.False(t, result.Flushed)
	assert.Equal(t, "Repository already signed (1 package)", result.String())

	after, err := os.ReadFile(repodata)
	require.NoError(t, err)
	afterInfo, err := os.Stat(repodata)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeInfo.ModTime(), afterInfo.ModTime())
}

func TestSignRepositoryDrift(t *testing.T) {
	dir, store := newRepo(t, 2)
	s := NewSigner(store, loader())
	key0 := keyFile(t, 0)

	_, err := s.SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: key0, SignedBy: signedBy})
	require.NoError(t, err)

	t.Run("signer only", func(t *testing.T) {
		result, err := s.SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: key0, SignedBy: "New Builder"})
		require.NoError(t, err)
		assert.True(t, result.Flushed)
	})

	t.Run("key only", func(t *testing.T) {
		result, err := s.SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: keyFile(t, 1), SignedBy: "New Builder"})
		require.NoError(t, err)
		assert.True(t, result.Flushed)
	})
}

func TestSignRepositoryFailures(t *testing.T) {
	t.Run("missing signer", func(t *testing.T) {
		store := &fakeStore{idx: &fakeIndex{packages: make([]models.Package, 1)}}
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: "/nonexistent"})
		assert.ErrorIs(t, err, models.ErrMissingSigner)
		assert.True(t, models.IsType(err, models.ErrConfig))
		assert.Zero(t, store.locks)
	})

	t.Run("bad compression", func(t *testing.T) {
		store := &fakeStore{idx: &fakeIndex{packages: make([]models.Package, 1)}}
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{SignedBy: signedBy, Compression: "bzip2"})
		assert.ErrorIs(t, err, models.ErrInvalidCompression)
	})

	t.Run("unreadable", func(t *testing.T) {
		store := repository.NewFileStore(testArch)
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: t.TempDir(), SignedBy: signedBy})
		assert.ErrorIs(t, err, models.ErrRepoUnreadable)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty", func(t *testing.T) {
		dir, store := newRepo(t, 0)
		before, err := os.ReadFile(store.RepodataPath(dir))
		require.NoError(t, err)

		_, err = NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: keyFile(t, 0), SignedBy: signedBy})
		assert.ErrorIs(t, err, models.ErrRepoEmpty)

		after, err := os.ReadFile(store.RepodataPath(dir))
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("missing key", func(t *testing.T) {
		idx := &fakeIndex{packages: make([]models.Package, 2)}
		store := &fakeStore{idx: idx}
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{
			RepoDir:        "repo",
			PrivateKeyPath: filepath.Join(t.TempDir(), "id_rsa"),
			SignedBy:       signedBy,
		})
		assert.ErrorIs(t, err, models.ErrKeyUnreadable)
		assert.Zero(t, idx.flushes)
	})

	t.Run("lock failed", func(t *testing.T) {
		idx := &fakeIndex{packages: make([]models.Package, 2)}
		store := &fakeStore{idx: idx, lockErr: errors.New("permission denied")}
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: "repo", PrivateKeyPath: keyFile(t, 0), SignedBy: signedBy})
		assert.ErrorIs(t, err, models.ErrLockFailed)
		assert.Zero(t, idx.flushes)
		assert.Zero(t, store.unlocks)
	})

	t.Run("flush failed releases lock", func(t *testing.T) {
		idx := &fakeIndex{packages: make([]models.Package, 2), flushErr: errors.New("disk full")}
		store := &fakeStore{idx: idx}
		_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: "repo", PrivateKeyPath: keyFile(t, 0), SignedBy: signedBy})
		assert.ErrorIs(t, err, models.ErrFlushFailed)
		assert.True(t, models.IsType(err, models.ErrRepo))
		assert.Equal(t, 1, idx.flushes)
		assert.Equal(t, 1, store.locks)
		assert.Equal(t, 1, store.unlocks)
		assert.False(t, store.locked)
	})
}

func TestSignRepositoryFlushFailureReleasesFileLock(t *testing.T) {
	dir := t.TempDir()
	fs := repository.NewFileStore(testArch)
	idx := &fakeIndex{packages: make([]models.Package, 1), flushErr: errors.New("disk full")}
	store := &fakeStore{
		idx: idx,
		lockPath: func() (repository.Lock, error) {
			return fs.Lock(dir)
		},
	}

	_, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: keyFile(t, 0), SignedBy: signedBy})
	require.ErrorIs(t, err, models.ErrFlushFailed)

	// A fresh non-blocking lock attempt must succeed right away
	f, err := os.OpenFile(fs.LockPath(dir), os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB))
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_UN))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "0 packages", Plural(0, "package"))
	assert.Equal(t, "1 package", Plural(1, "package"))
	assert.Equal(t, "2 packages", Plural(2, "package"))
}

// interleavedStore runs beforeLock just before the write lock is taken,
// standing in for another writer that gets there first
type interleavedStore struct {
	*repository.FileStore
	beforeLock func()
}

func (s *interleavedStore) Lock(repoDir string) (repository.Lock, error) {
	if s.beforeLock != nil {
		s.beforeLock()
		s.beforeLock = nil
	}
	return s.FileStore.Lock(repoDir)
}

func TestSignRepositoryKeepsConcurrentIndexUpdate(t *testing.T) {
	dir, fs := newRepo(t, 1)
	store := &interleavedStore{
		FileStore: fs,
		beforeLock: func() {
			idx, err := fs.Open(dir)
			require.NoError(t, err)
			pkgs := append(idx.Packages(), models.Package{Name: "late", Version: "late-1.0_1", Architecture: testArch})
			require.NoError(t, idx.Flush(pkgs, idx.SigningMetadata(), utils.CompressionZstd))
		},
	}

	result, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{
		RepoDir:        dir,
		PrivateKeyPath: keyFile(t, 0),
		SignedBy:       signedBy,
	})
	require.NoError(t, err)
	assert.True(t, result.Flushed)
	assert.Equal(t, 2, result.Packages)

	idx, err := fs.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.PackageCount())
	require.NotNil(t, idx.SigningMetadata())
	assert.Equal(t, signedBy, idx.SigningMetadata().SignedBy)
}

func TestSignRepositorySkipsFlushWhenSignedConcurrently(t *testing.T) {
	dir, fs := newRepo(t, 1)
	key := keyFile(t, 0)
	store := &interleavedStore{
		FileStore: fs,
		beforeLock: func() {
			_, err := NewSigner(fs, loader()).SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: key, SignedBy: signedBy})
			require.NoError(t, err)
		},
	}

	result, err := NewSigner(store, loader()).SignRepository(&models.RepoSignConfig{RepoDir: dir, PrivateKeyPath: key, SignedBy: signedBy})
	require.NoError(t, err)
	assert.False(t, result.Flushed)
	assert.Equal(t, 1, result.Packages)
}
