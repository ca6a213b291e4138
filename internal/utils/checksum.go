package utils

import (
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

// Checksum contains the checksum and size of a file
type Checksum struct {
	SHA256 string
	Size   int64
}

// CalculateChecksums calculates the sha256 checksum of a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file info for size
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	dgst, err := DigestReader(f)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA256: dgst.Encoded(),
		Size:   info.Size(),
	}, nil
}

// DigestReader streams r through sha256
func DigestReader(r io.Reader) (digest.Digest, error) {
	return digest.SHA256.FromReader(r)
}
