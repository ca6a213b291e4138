package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrKeyLoad ErrorType = iota
	ErrConfig
	ErrRepo
	ErrSigning
	ErrFileOp
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrKeyLoad:
		return "KeyLoad"
	case ErrConfig:
		return "Config"
	case ErrRepo:
		return "Repo"
	case ErrSigning:
		return "Signing"
	case ErrFileOp:
		return "FileOp"
	default:
		return "Unknown"
	}
}

// Sentinel errors, matched with errors.Is through RepoSignError.
var (
	// Key loading
	ErrNoHome           = errors.New("cannot determine home directory")
	ErrKeyUnreadable    = errors.New("failed to read the RSA privkey")
	ErrKeyInvalidFormat = errors.New("invalid RSA privkey")

	// Configuration
	ErrMissingSigner      = errors.New("--signedby unset! cannot initialize signed repository")
	ErrInvalidCompression = errors.New("unsupported compression")

	// Repository
	ErrRepoUnreadable = errors.New("cannot read repository data")
	ErrRepoEmpty      = errors.New("invalid repository, no packages")
	ErrLockFailed     = errors.New("cannot lock repository")
	ErrFlushFailed    = errors.New("failed to write repodata")

	// Indexing
	ErrPackageUnreadable = errors.New("cannot read package archive")

	// Signing
	ErrSignIO        = errors.New("cannot read file to sign")
	ErrSigningFailed = errors.New("failed to sign")

	// Sidecar output
	ErrSidecarWrite = errors.New("failed to write signature file")
)

// RepoSignError represents an error raised while signing a repository or package
type RepoSignError struct {
	Type ErrorType
	Path string
	Err  error
}

// NewError wraps cause under the given sentinel. cause may be nil.
func NewError(typ ErrorType, path string, sentinel, cause error) *RepoSignError {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &RepoSignError{Type: typ, Path: path, Err: err}
}

// Error implements the error interface
func (e *RepoSignError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *RepoSignError) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a RepoSignError of the given category.
func IsType(err error, typ ErrorType) bool {
	var rse *RepoSignError
	return errors.As(err, &rse) && rse.Type == typ
}
