package rindex

import (
	"errors"
	"io"
	"os"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/signer"
	"github.com/ralt/reposign/internal/utils"
	"github.com/sirupsen/logrus"
)

// SignatureExt is appended to a package path to name its signature file
const SignatureExt = ".sig"

// FileState is the terminal state of one package in a signing batch
type FileState int

const (
	StateSkipped FileState = iota
	StateWritten
	StateFailed
)

// String returns the string representation of FileState
func (s FileState) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StateWritten:
		return "written"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FileResult records what happened to one package
type FileResult struct {
	Path    string
	SigPath string
	State   FileState
	SigLen  int
	Err     error
}

// BatchResult lists the packages processed, in order. A failed package is
// always the last entry.
type BatchResult struct {
	Files []FileResult
}

// Count returns how many files ended in state
func (b *BatchResult) Count(state FileState) int {
	n := 0
	for _, f := range b.Files {
		if f.State == state {
			n++
		}
	}
	return n
}

// SignaturePath returns the signature file path for a package
func SignaturePath(pkgPath string) string {
	return pkgPath + SignatureExt
}

// SignPackages writes a <pkg>.sig file for every path, in order, stopping at
// the first failure. Existing signatures are kept unless config.Force is set.
// The key is loaded once, on the first package that needs signing.
func (s *Signer) SignPackages(config *models.PackageSignConfig) (*BatchResult, error) {
	result := &BatchResult{}

	var key *signer.PrivateKey
	defer func() {
		if key != nil {
			key.Destroy()
		}
	}()

	for _, path := range config.Paths {
		sigPath := SignaturePath(path)

		if !config.Force && utils.FileReadable(sigPath) {
			logrus.Debugf("skipping %s, file signature found.", path)
			result.Files = append(result.Files, FileResult{Path: path, SigPath: sigPath, State: StateSkipped})
			continue
		}

		if key == nil {
			var err error
			key, err = s.keys.Load(config.PrivateKeyPath)
			if err != nil {
				result.Files = append(result.Files, FileResult{Path: path, SigPath: sigPath, State: StateFailed, Err: err})
				return result, err
			}
		}

		fr := signPackage(key, path, sigPath, config.Force)
		result.Files = append(result.Files, fr)
		if fr.State == StateFailed {
			return result, fr.Err
		}
	}

	return result, nil
}

func signPackage(key signer.FileSigner, path, sigPath string, force bool) FileResult {
	fr := FileResult{Path: path, SigPath: sigPath}

	sig, err := key.SignFile(path)
	if err != nil {
		fr.State = StateFailed
		fr.Err = err
		return fr
	}

	skipped, err := writeSignature(sigPath, sig.Bytes, force)
	switch {
	case err != nil:
		fr.State = StateFailed
		fr.Err = models.NewError(models.ErrFileOp, sigPath, models.ErrSidecarWrite, err)
	case skipped:
		logrus.Debugf("skipping %s, file signature created concurrently.", path)
		fr.State = StateSkipped
	default:
		fr.State = StateWritten
		fr.SigLen = sig.Len()
	}
	return fr
}

// sidecarWriter wraps the open signature file before sig is written to it
var sidecarWriter = func(w io.Writer) io.Writer { return w }

// writeSignature writes sig to path. With force an existing file is replaced
// atomically. Without force the file must not exist; if it does, the write is
// skipped and skipped is true. A failed write never leaves a partial file.
func writeSignature(path string, sig []byte, force bool) (skipped bool, err error) {
	write := func(w io.Writer) error {
		return utils.WriteAll(sidecarWriter(w), sig)
	}

	if force {
		return false, utils.WriteAtomic(path, 0644, write)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return true, nil
		}
		return false, err
	}

	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return false, err
	}
	return false, nil
}
