package models

// Package represents one binary package entry of a repository index
type Package struct {
	Name         string
	Version      string // pkgver, e.g. "foo-1.0_1"
	Architecture string

	// File information
	Filename  string
	Size      int64
	SHA256Sum string
}
