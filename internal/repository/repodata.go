package repository

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/utils"
	"gopkg.in/yaml.v3"
)

// Archive member names inside the repodata file
const (
	IndexFile     = "index.yaml"
	IndexMetaFile = "index-meta.yaml"
)

// indexEntry is the serialized form of one package in index.yaml
type indexEntry struct {
	PkgVer       string `yaml:"pkgver"`
	Architecture string `yaml:"architecture"`
	Filename     string `yaml:"filename"`
	Size         int64  `yaml:"filename-size"`
	SHA256       string `yaml:"filename-sha256"`
}

// indexMeta is the serialized form of index-meta.yaml
type indexMeta struct {
	PublicKey     string `yaml:"public-key"`
	PublicKeySize uint16 `yaml:"public-key-size"`
	SignatureBy   string `yaml:"signature-by"`
	SignatureType string `yaml:"signature-type"`
}

// Repodata is the decoded content of a repodata archive
type Repodata struct {
	Packages []models.Package
	Meta     *models.RepositorySigningMetadata
}

// ReadRepodata decodes the repodata archive at path
func ReadRepodata(path string) (*Repodata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, _, err := utils.NewDecompressReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	defer r.Close()

	rd := &Repodata{}
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		switch header.Name {
		case IndexFile:
			var entries map[string]indexEntry
			if err := yaml.NewDecoder(tr).Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to parse %s: %w", IndexFile, err)
			}
			rd.Packages = entriesToPackages(entries)
		case IndexMetaFile:
			var meta indexMeta
			if err := yaml.NewDecoder(tr).Decode(&meta); err != nil {
				if errors.Is(err, io.EOF) {
					continue
				}
				return nil, fmt.Errorf("failed to parse %s: %w", IndexMetaFile, err)
			}
			rd.Meta = &models.RepositorySigningMetadata{
				PublicKey:     []byte(meta.PublicKey),
				PublicKeySize: meta.PublicKeySize,
				SignedBy:      meta.SignatureBy,
				SignatureType: meta.SignatureType,
			}
		}
	}

	return rd, nil
}

// Encode serializes the repodata into a compressed tar archive
func (rd *Repodata) Encode(c utils.Compression) ([]byte, error) {
	indexData, err := yaml.Marshal(packagesToEntries(rd.Packages))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", IndexFile, err)
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	now := time.Now()

	if err := addTarFile(tw, IndexFile, indexData, now); err != nil {
		return nil, err
	}

	if rd.Meta != nil {
		metaData, err := yaml.Marshal(indexMeta{
			PublicKey:     string(rd.Meta.PublicKey),
			PublicKeySize: rd.Meta.PublicKeySize,
			SignatureBy:   rd.Meta.SignedBy,
			SignatureType: rd.Meta.SignatureType,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", IndexMetaFile, err)
		}
		if err := addTarFile(tw, IndexMetaFile, metaData, now); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}

	return utils.Compress(tarBuf.Bytes(), c)
}

// addTarFile adds a file to a tar archive
func addTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err := tw.Write(data)
	return err
}

func entriesToPackages(entries map[string]indexEntry) []models.Package {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	packages := make([]models.Package, 0, len(entries))
	for _, name := range names {
		e := entries[name]
		packages = append(packages, models.Package{
			Name:         name,
			Version:      e.PkgVer,
			Architecture: e.Architecture,
			Filename:     e.Filename,
			Size:         e.Size,
			SHA256Sum:    e.SHA256,
		})
	}
	return packages
}

func packagesToEntries(packages []models.Package) map[string]indexEntry {
	entries := make(map[string]indexEntry, len(packages))
	for _, pkg := range packages {
		entries[pkg.Name] = indexEntry{
			PkgVer:       pkg.Version,
			Architecture: pkg.Architecture,
			Filename:     pkg.Filename,
			Size:         pkg.Size,
			SHA256:       pkg.SHA256Sum,
		}
	}
	return entries
}
