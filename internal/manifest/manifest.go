package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
)

const header = "v0"

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Package is one downloadable archive of an application version.
type Package struct {
	Name       string
	Checksum   string
	Size       int64
	PackedSize int64
}

// Manifest is the ordered package list for one version.
type Manifest struct {
	Version  string
	Packages []Package
}

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// URL returns the CDN download URL for a package of this version.
func (m *Manifest) URL(cdnBase string, pkg Package) string {
	return PackageURL(cdnBase, m.Version, pkg.Name)
}

// TotalPackedSize sums the download size of every package.
func (m *Manifest) TotalPackedSize() int64 {
	var total int64
	for _, p := range m.Packages {
		total += p.PackedSize
	}
	return total
}

// PackageURL joins the CDN base, version and package name.
func PackageURL(cdnBase, version, name string) string {
	return strings.TrimRight(cdnBase, "/") + "/" + version + "-" + name
}

// ManifestURL returns the location of a version's manifest.
func ManifestURL(cdnBase, version string) string {
	return PackageURL(cdnBase, version, "rbxPkgManifest.txt")
}

// Fetch downloads and parses the manifest for version.
func Fetch(ctx context.Context, g Getter, cdnBase, version string) (*Manifest, error) {
	body, err := g.Get(ctx, ManifestURL(cdnBase, version))
	if err != nil {
		return nil, fmt.Errorf("fetching manifest for %s: %w", version, err)
	}
	m, err := Parse(body)
	if err != nil {
		return nil, err
	}
	m.Version = version
	return m, nil
}

// Parse decodes manifest text. CRLF line endings and trailing blank lines
// are accepted; anything else out of shape is a parse error.
func Parse(data []byte) (*Manifest, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "reading manifest", err)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != header {
		return nil, apperr.New(apperr.KindParse, "parsing manifest", "missing v0 header")
	}
	body := lines[1:]
	if len(body)%4 != 0 {
		return nil, apperr.Newf(apperr.KindParse, "parsing manifest",
			"%d lines after header is not a multiple of 4", len(body))
	}

	m := &Manifest{}
	for i := 0; i < len(body); i += 4 {
		pkg, err := parsePackage(body[i : i+4])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindParse, fmt.Sprintf("parsing manifest entry %d", i/4+1), err)
		}
		m.Packages = append(m.Packages, pkg)
	}
	if len(m.Packages) == 0 {
		return nil, apperr.New(apperr.KindParse, "parsing manifest", "no packages listed")
	}
	return m, nil
}

func parsePackage(group []string) (Package, error) {
	name := strings.TrimSpace(group[0])
	checksum := strings.ToLower(strings.TrimSpace(group[1]))
	if name == "" {
		return Package{}, fmt.Errorf("empty package name")
	}
	if !checksumPattern.MatchString(checksum) {
		return Package{}, fmt.Errorf("%s: invalid checksum %q", name, group[1])
	}
	size, err := strconv.ParseInt(strings.TrimSpace(group[2]), 10, 64)
	if err != nil {
		return Package{}, fmt.Errorf("%s: invalid size: %w", name, err)
	}
	packed, err := strconv.ParseInt(strings.TrimSpace(group[3]), 10, 64)
	if err != nil {
		return Package{}, fmt.Errorf("%s: invalid packed size: %w", name, err)
	}
	return Package{Name: name, Checksum: checksum, Size: size, PackedSize: packed}, nil
}
