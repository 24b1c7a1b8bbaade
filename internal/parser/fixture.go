package parser

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// FixtureManifestName is the manifest file looked up in a base profile
// directory when no explicit path is given.
const FixtureManifestName = "fixture.yaml"

// FixtureManifest lists a fixture's element profiles in matrix column order.
//
//	name: troffer-53
//	elements:
//	  - LGP_01.ies
//	  - LGP_02.ies
//	  - Spot_01.ies
type FixtureManifest struct {
	Name     string   `yaml:"name"`
	Elements []string `yaml:"elements"`
}

// ParseFixtureManifest reads a manifest YAML file.
func ParseFixtureManifest(filePath string) (*FixtureManifest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseFixtureManifestFromReader(file)
}

// ParseFixtureManifestFromReader parses a manifest from an io.Reader.
func ParseFixtureManifestFromReader(r io.Reader) (*FixtureManifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var manifest FixtureManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid fixture manifest: %w", err)
	}
	if len(manifest.Elements) == 0 {
		return nil, errors.New("fixture manifest lists no elements")
	}

	return &manifest, nil
}

// ElementNames returns the element profile file names for dir in column
// order. An explicit manifestPath wins; otherwise dir/fixture.yaml is used
// when present, and sorted *.ies file names when it is not.
func ElementNames(dir, manifestPath string) ([]string, error) {
	if manifestPath == "" {
		candidate := filepath.Join(dir, FixtureManifestName)
		if _, err := os.Stat(candidate); err == nil {
			manifestPath = candidate
		}
	}

	if manifestPath != "" {
		manifest, err := ParseFixtureManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture manifest %s: %w", manifestPath, err)
		}
		return manifest.Elements, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list base profiles: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ies") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no .ies files in %s: %w", dir, fs.ErrNotExist)
	}
	return names, nil
}

// LoadBaseProfiles parses every element profile of the fixture in dir.
// Tolerated parse noise is returned per element name.
func LoadBaseProfiles(dir, manifestPath string) ([]*models.PhotometricProfile, []string, map[string][]*models.ParseError, error) {
	names, err := ElementNames(dir, manifestPath)
	if err != nil {
		return nil, nil, nil, err
	}

	profiles := make([]*models.PhotometricProfile, 0, len(names))
	noise := make(map[string][]*models.ParseError)
	for _, name := range names {
		profile, parseErrors, err := ParseIES(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load element %s: %w", name, err)
		}
		if len(parseErrors) > 0 {
			noise[name] = parseErrors
		}
		profiles = append(profiles, profile)
	}

	return profiles, names, noise, nil
}
