package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/reposign/internal/utils"
	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner interface for filesystem scanning
type FileSystemScanner struct{}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner() *FileSystemScanner {
	return &FileSystemScanner{}
}

// Scan lists the package archives directly inside dir. Repositories are
// flat, so subdirectories are not descended into.
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedPackage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var packages []ScannedPackage
	for _, entry := range entries {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), utils.PackageExt) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		ok, err := s.IsPackage(path)
		if err != nil {
			logrus.Warnf("Failed to inspect %s: %v", path, err)
			continue
		}
		if !ok {
			logrus.Warnf("Skipping %s: not a compressed archive", path)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logrus.Warnf("Failed to stat %s: %v", path, err)
			continue
		}

		logrus.Debugf("Found package: %s", path)
		packages = append(packages, ScannedPackage{
			Path: path,
			Size: info.Size(),
		})
	}

	logrus.Infof("Found %d packages in %s", len(packages), dir)
	return packages, nil
}

// IsPackage checks the extension and that the archive is zstd, xz or gzip compressed
func (s *FileSystemScanner) IsPackage(path string) (bool, error) {
	if filepath.Ext(path) != utils.PackageExt {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	// Read enough bytes for magic detection
	header := make([]byte, 6)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return false, err
	}

	return utils.DetectCompression(header[:n]) != utils.CompressionNone, nil
}
