package catalogue

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed data/mezmurs.json
var sampleBundle []byte

// BundleOptions adjusts records while a bundle is read.
type BundleOptions struct {
	// IDPrefix is prepended to every id, keeping ids of secondary bundles
	// distinct from the primary one.
	IDPrefix string
	// Section, when set, overrides the section of every record.
	Section string
}

// OromoBundle is the option set for the Afan Oromo bundle.
var OromoBundle = BundleOptions{IDPrefix: "oro_", Section: SectionAfanOromo}

// LoadBundle reads a JSON array of hymns.
func LoadBundle(r io.Reader, opts BundleOptions) ([]Hymn, error) {
	var hymns []Hymn
	if err := json.NewDecoder(r).Decode(&hymns); err != nil {
		return nil, fmt.Errorf("failed to decode hymn bundle: %w", err)
	}
	for i := range hymns {
		if opts.IDPrefix != "" {
			hymns[i].ID = opts.IDPrefix + hymns[i].ID
		}
		if opts.Section != "" {
			hymns[i].Section = opts.Section
		}
	}
	return hymns, nil
}

// LoadBundleFile reads a bundle from disk.
func LoadBundleFile(path string, opts BundleOptions) ([]Hymn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hymn bundle: %w", err)
	}
	defer f.Close()
	return LoadBundle(f, opts)
}

// SampleHymns returns the bundle compiled into the binary.
func SampleHymns() ([]Hymn, error) {
	return LoadBundle(bytes.NewReader(sampleBundle), BundleOptions{})
}
