package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/utils"
)

func testPackages() []models.Package {
	return []models.Package{
		{Name: "foo", Version: "foo-1.0_1", Architecture: "x86_64", Filename: "foo-1.0_1.x86_64.xbps", Size: 42, SHA256Sum: "ab"},
		{Name: "bar", Version: "bar-2.1_3", Architecture: "noarch", Filename: "bar-2.1_3.noarch.xbps", Size: 7, SHA256Sum: "cd"},
	}
}

func TestFlushAndOpen(t *testing.T) {
	for _, c := range []utils.Compression{utils.CompressionNone, utils.CompressionGzip, utils.CompressionXZ, utils.CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			dir := t.TempDir()
			store := NewFileStore("x86_64")

			idx, err := store.OpenOrEmpty(dir)
			require.NoError(t, err)
			assert.Equal(t, 0, idx.PackageCount())

			meta := &models.RepositorySigningMetadata{
				PublicKey:     []byte("-----BEGIN PUBLIC KEY-----\nMIIB\n-----END PUBLIC KEY-----\n"),
				PublicKeySize: 4096,
				SignedBy:      "Builder <builder@example.org>",
				SignatureType: models.SignatureTypeRSA,
			}
			require.NoError(t, idx.Flush(testPackages(), meta, c))

			raw, err := os.ReadFile(store.RepodataPath(dir))
			require.NoError(t, err)
			assert.Equal(t, c, utils.DetectCompression(raw))

			reopened, err := store.Open(dir)
			require.NoError(t, err)
			assert.Equal(t, 2, reopened.PackageCount())
			assert.True(t, meta.Equal(reopened.SigningMetadata()))

			pkgs := reopened.Packages()
			assert.Equal(t, "bar", pkgs[0].Name)
			assert.Equal(t, testPackages()[1], pkgs[0])
			assert.Equal(t, testPackages()[0], pkgs[1])
		})
	}
}

func TestUnsignedRepodataHasNoMeta(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore("aarch64")
	assert.Equal(t, filepath.Join(dir, "aarch64-repodata"), store.RepodataPath(dir))

	idx, err := store.OpenOrEmpty(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Flush(testPackages(), nil, utils.DefaultCompression))

	reopened, err := store.Open(dir)
	require.NoError(t, err)
	assert.Nil(t, reopened.SigningMetadata())
}

func TestOpenErrors(t *testing.T) {
	store := NewFileStore("x86_64")

	_, err := store.Open(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(store.RepodataPath(dir), []byte{0x28, 0xB5, 0x2F, 0xFD, 0x00}, 0644))
	_, err = store.Open(dir)
	assert.Error(t, err)
}

func TestLockExclusive(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore("x86_64")

	lock, err := store.Lock(dir)
	require.NoError(t, err)

	f, err := os.OpenFile(store.LockPath(dir), os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	assert.ErrorIs(t, unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB), unix.EWOULDBLOCK)

	require.NoError(t, lock.Unlock())
	require.NoError(t, lock.Unlock())
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB))
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_UN))
}

func TestLockBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore("x86_64")

	first, err := store.Lock(dir)
	require.NoError(t, err)

	acquired := make(chan Lock)
	go func() {
		l, err := store.Lock(dir)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- l
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())

	select {
	case l, ok := <-acquired:
		require.True(t, ok, "second lock failed")
		require.NoError(t, l.Unlock())
	case <-time.After(5 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestNativeArch(t *testing.T) {
	assert.NotEmpty(t, NativeArch())
	assert.Equal(t, NativeArch(), NewFileStore("").Arch)
}
