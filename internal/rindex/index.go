package rindex

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/scanner"
	"github.com/ralt/reposign/internal/utils"
	"github.com/sirupsen/logrus"
)

// NoArch marks packages installable on every architecture
const NoArch = "noarch"

// Indexer registers package archives found in a repository directory
type Indexer struct {
	store   *repository.FileStore
	scanner scanner.Scanner
}

// NewIndexer creates an Indexer
func NewIndexer(store *repository.FileStore, sc scanner.Scanner) *Indexer {
	if sc == nil {
		sc = scanner.NewFileSystemScanner()
	}
	return &Indexer{store: store, scanner: sc}
}

// IndexResult summarizes an index update
type IndexResult struct {
	Added     int
	Updated   int
	Unchanged int
	Total     int
	Bytes     uint64
}

// String renders the result for the operator
func (r IndexResult) String() string {
	return fmt.Sprintf("Index updated: %d added, %d updated, %d unchanged (%s, %s)",
		r.Added, r.Updated, r.Unchanged, Plural(r.Total, "package"), humanize.Bytes(r.Bytes))
}

// Index scans config.RepoDir for package archives of the store's architecture
// and writes them into the index, keeping existing signing metadata.
func (ix *Indexer) Index(ctx context.Context, config *models.IndexConfig) (*IndexResult, error) {
	compression, err := utils.ParseCompression(config.Compression)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", models.ErrInvalidCompression, err)
	}

	scanned, err := ix.scanner.Scan(ctx, config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoUnreadable, err)
	}

	var found []models.Package
	for _, sp := range scanned {
		pkg, err := utils.ParsePackageFilename(sp.Path)
		if err != nil {
			logrus.Warnf("Skipping %s: %v", sp.Path, err)
			continue
		}
		if pkg.Architecture != ix.store.Arch && pkg.Architecture != NoArch {
			logrus.Debugf("Skipping %s: architecture %s", sp.Path, pkg.Architecture)
			continue
		}

		checksums, err := utils.CalculateChecksums(sp.Path)
		if err != nil {
			return nil, models.NewError(models.ErrFileOp, sp.Path, models.ErrPackageUnreadable, err)
		}
		pkg.Size = checksums.Size
		pkg.SHA256Sum = checksums.SHA256
		pkg.Filename = filepath.Base(sp.Path)
		found = append(found, *pkg)
	}
	found = newestBuilds(found)

	lock, err := ix.store.Lock(config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrLockFailed, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			logrus.Warnf("Failed to release repository lock: %v", uerr)
		}
	}()

	idx, err := ix.store.OpenOrEmpty(config.RepoDir)
	if err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrRepoUnreadable, err)
	}

	existing := idx.Packages()
	indexed := make(map[string]bool)
	for _, pkg := range utils.DetectConflicts(existing, found) {
		indexed[utils.PackageIdentity(pkg)] = true
	}

	result := &IndexResult{}
	merged := make(map[string]models.Package, len(existing)+len(found))
	for _, pkg := range existing {
		merged[pkg.Name] = pkg
	}
	for _, pkg := range found {
		old, ok := merged[pkg.Name]
		switch {
		case !ok:
			logrus.Infof("Registering %s (%s)", pkg.Version, pkg.Filename)
			result.Added++
		case indexed[utils.PackageIdentity(pkg)] && old.Version == pkg.Version && old.SHA256Sum == pkg.SHA256Sum:
			result.Unchanged++
		default:
			logrus.Infof("Updating %s -> %s", old.Version, pkg.Version)
			result.Updated++
		}
		merged[pkg.Name] = pkg
	}

	packages := make([]models.Package, 0, len(merged))
	for _, pkg := range merged {
		packages = append(packages, pkg)
		result.Bytes += uint64(pkg.Size)
	}
	result.Total = len(packages)

	if err := idx.Flush(packages, idx.SigningMetadata(), compression); err != nil {
		return nil, models.NewError(models.ErrRepo, config.RepoDir, models.ErrFlushFailed, err)
	}

	return result, nil
}

// newestBuilds keeps one package per name, the one with the highest version
func newestBuilds(packages []models.Package) []models.Package {
	newest := make(map[string]int, len(packages))
	var out []models.Package
	for _, pkg := range packages {
		i, ok := newest[pkg.Name]
		if !ok {
			newest[pkg.Name] = len(out)
			out = append(out, pkg)
			continue
		}
		if utils.CompareVersions(pkg.Version, out[i].Version) > 0 {
			logrus.Debugf("Ignoring %s, %s is newer", out[i].Filename, pkg.Version)
			out[i] = pkg
		} else {
			logrus.Debugf("Ignoring %s, %s is newer", pkg.Filename, out[i].Version)
		}
	}
	return out
}
