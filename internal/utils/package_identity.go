package utils

import (
	"cmp"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ralt/reposign/internal/models"
)

// PackageExt is the file extension of binary package archives
const PackageExt = ".xbps"

// ParsePackageFilename splits "<name>-<version>_<revision>.<arch>.xbps" into
// a package with Name, Version (pkgver) and Architecture set
func ParsePackageFilename(path string) (*models.Package, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, PackageExt) {
		return nil, fmt.Errorf("not a package archive: %s", base)
	}
	stem := strings.TrimSuffix(base, PackageExt)

	dot := strings.LastIndex(stem, ".")
	if dot <= 0 || dot == len(stem)-1 {
		return nil, fmt.Errorf("missing architecture in %s", base)
	}
	pkgver, arch := stem[:dot], stem[dot+1:]

	dash := strings.LastIndex(pkgver, "-")
	if dash <= 0 || dash == len(pkgver)-1 {
		return nil, fmt.Errorf("missing version in %s", base)
	}
	version := pkgver[dash+1:]
	if !strings.Contains(version, "_") {
		return nil, fmt.Errorf("missing revision in %s", base)
	}

	return &models.Package{
		Name:         pkgver[:dash],
		Version:      pkgver,
		Architecture: arch,
		Filename:     base,
	}, nil
}

// PackageIdentity returns a unique identifier for a package
func PackageIdentity(pkg models.Package) string {
	return fmt.Sprintf("%s:%s", pkg.Version, pkg.Architecture)
}

// DetectConflicts returns packages from newPackages that are already present in existing
func DetectConflicts(existing, newPackages []models.Package) []models.Package {
	existingMap := make(map[string]bool)
	for _, pkg := range existing {
		existingMap[PackageIdentity(pkg)] = true
	}

	var conflicts []models.Package
	for _, pkg := range newPackages {
		if existingMap[PackageIdentity(pkg)] {
			conflicts = append(conflicts, pkg)
		}
	}
	return conflicts
}

// CompareVersions orders two pkgver strings ("foo-1.10_1") by version and
// then by revision. Digit runs compare numerically; a letter run sorts below
// a number or the end of the version, so 1.0rc1 < 1.0 < 1.0.1.
func CompareVersions(a, b string) int {
	va, ra := splitPkgver(a)
	vb, rb := splitPkgver(b)
	if c := compareVersion(va, vb); c != 0 {
		return c
	}
	return cmp.Compare(ra, rb)
}

func splitPkgver(pkgver string) (string, int) {
	v := pkgver
	if i := strings.LastIndex(v, "-"); i >= 0 {
		v = v[i+1:]
	}
	i := strings.LastIndex(v, "_")
	if i < 0 {
		return v, 0
	}
	rev, err := strconv.Atoi(v[i+1:])
	if err != nil {
		rev = 0
	}
	return v[:i], rev
}

func compareVersion(a, b string) int {
	for a != "" || b != "" {
		var ta, tb string
		ta, a = nextVersionToken(a)
		tb, b = nextVersionToken(b)
		if c := compareVersionToken(ta, tb); c != 0 {
			return c
		}
	}
	return 0
}

// nextVersionToken skips separators and returns the next run of digits or letters
func nextVersionToken(s string) (token, rest string) {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !isDigit(r) && !isLetter(r) })
	if s == "" {
		return "", ""
	}
	digits := isDigit(rune(s[0]))
	i := 0
	for i < len(s) && (digits && isDigit(rune(s[i])) || !digits && isLetter(rune(s[i]))) {
		i++
	}
	return s[:i], s[i:]
}

func compareVersionToken(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		if isLetter(rune(b[0])) {
			return 1
		}
		return -1
	case b == "":
		return -compareVersionToken(b, a)
	}

	da, db := isDigit(rune(a[0])), isDigit(rune(b[0]))
	switch {
	case da && db:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case da:
		return 1
	case db:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }
