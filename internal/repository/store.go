// Package repository reads and writes the repodata archive of a package
// repository and serializes writers through an advisory lock file.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/utils"
	"github.com/sirupsen/logrus"
)

// Index is an opened repository index
type Index interface {
	// Packages returns the indexed packages
	Packages() []models.Package

	// PackageCount returns the number of indexed packages
	PackageCount() int

	// SigningMetadata returns the persisted signing metadata, or nil when unsigned
	SigningMetadata() *models.RepositorySigningMetadata

	// Flush writes packages and meta to disk. The caller must hold the write lock.
	Flush(packages []models.Package, meta *models.RepositorySigningMetadata, c utils.Compression) error
}

// Lock is a held repository write lock
type Lock interface {
	Unlock() error
}

// Store opens repositories and acquires their write locks
type Store interface {
	Open(repoDir string) (Index, error)
	Lock(repoDir string) (Lock, error)
}

// FileStore keeps repository data in <repodir>/<arch>-repodata
type FileStore struct {
	Arch string
}

// NewFileStore creates a store for the given architecture; empty selects the host architecture
func NewFileStore(arch string) *FileStore {
	if arch == "" {
		arch = NativeArch()
	}
	return &FileStore{Arch: arch}
}

// RepodataPath returns the repodata archive path for repoDir
func (s *FileStore) RepodataPath(repoDir string) string {
	return filepath.Join(repoDir, s.Arch+"-repodata")
}

// LockPath returns the lock file path for repoDir
func (s *FileStore) LockPath(repoDir string) string {
	return s.RepodataPath(repoDir) + ".lock"
}

// Open reads the repository index in repoDir
func (s *FileStore) Open(repoDir string) (Index, error) {
	path := s.RepodataPath(repoDir)
	rd, err := ReadRepodata(path)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Opened %s (%d packages, signed=%t)", path, len(rd.Packages), rd.Meta != nil)
	return &fileIndex{path: path, data: rd}, nil
}

// OpenOrEmpty is Open, returning an empty index when no repodata exists yet
func (s *FileStore) OpenOrEmpty(repoDir string) (Index, error) {
	idx, err := s.Open(repoDir)
	if errors.Is(err, os.ErrNotExist) {
		return &fileIndex{path: s.RepodataPath(repoDir), data: &Repodata{}}, nil
	}
	return idx, err
}

// Lock blocks until the repository write lock is held
func (s *FileStore) Lock(repoDir string) (Lock, error) {
	l, err := AcquireLock(s.LockPath(repoDir))
	if err != nil {
		return nil, err
	}
	return l, nil
}

type fileIndex struct {
	path string
	data *Repodata
}

func (i *fileIndex) Packages() []models.Package {
	return i.data.Packages
}

func (i *fileIndex) PackageCount() int {
	return len(i.data.Packages)
}

func (i *fileIndex) SigningMetadata() *models.RepositorySigningMetadata {
	return i.data.Meta
}

func (i *fileIndex) Flush(packages []models.Package, meta *models.RepositorySigningMetadata, c utils.Compression) error {
	next := &Repodata{Packages: packages, Meta: meta}
	data, err := next.Encode(c)
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(i.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", i.path, err)
	}
	i.data = next
	logrus.Debugf("Wrote %s (%d packages, %s)", i.path, len(packages), c)
	return nil
}

// NativeArch maps the Go architecture to the conventional repository architecture name
func NativeArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7l"
	case "ppc64le":
		return "ppc64le"
	default:
		return runtime.GOARCH
	}
}
