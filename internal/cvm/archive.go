package cvm

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Archive holds one downloaded monthly archive in memory. The zip is kept
// compressed; individual member files are decompressed on demand so several
// workers can read different members concurrently.
type Archive struct {
	period string
	data   []byte
}

// NewArchive wraps raw zip bytes for the given YYYYMM period.
func NewArchive(period string, data []byte) *Archive {
	return &Archive{period: period, data: data}
}

// Period returns the YYYYMM token this archive covers.
func (a *Archive) Period() string {
	return a.period
}

// Size returns the compressed archive size in bytes.
func (a *Archive) Size() int {
	return len(a.data)
}

// CSVFiles lists the archive members with a .csv extension, sorted by name.
// Matching is case-insensitive since the portal has shipped both cases.
func (a *Archive) CSVFiles() ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(a.data), int64(len(a.data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", a.period, err)
	}

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader over one member file, decoded from latin-1 to UTF-8.
// Each call opens an independent zip reader, so concurrent opens are safe.
// The caller must close the returned reader.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	r, err := zip.NewReader(bytes.NewReader(a.data), int64(len(a.data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", a.period, err)
	}

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive %s: %w", name, a.period, err)
		}
		// CVM publishes its CSVs in ISO 8859-1. The decoder maps every
		// byte to a rune, so decoding never fails on malformed input.
		return &decodedFile{
			Reader: transform.NewReader(rc, charmap.ISO8859_1.NewDecoder()),
			inner:  rc,
		}, nil
	}

	return nil, fmt.Errorf("file %s not found in archive %s", name, a.period)
}

type decodedFile struct {
	io.Reader
	inner io.ReadCloser
}

func (d *decodedFile) Close() error {
	return d.inner.Close()
}
