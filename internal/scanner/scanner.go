package scanner

import "context"

// ScannedPackage represents a package archive found during scanning
type ScannedPackage struct {
	Path string
	Size int64
}

// Scanner interface for finding package archives
type Scanner interface {
	// Scan lists package archives in a repository directory
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)

	// IsPackage reports whether the file at path is a package archive
	IsPackage(path string) (bool, error)
}
