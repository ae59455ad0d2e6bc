package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fleetctl/internal/fleet"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedCatalog is returned for catalog files that are neither TOML nor YAML.
var ErrUnsupportedCatalog = errors.New("registry: unsupported catalog format")

// Catalog is the on-disk description of versions and their profiles.
type Catalog struct {
	DefaultVersion string           `toml:"default_version" yaml:"default_version"`
	Versions       []CatalogVersion `toml:"versions" yaml:"versions"`
}

// CatalogVersion lists the profiles defined in one version.
type CatalogVersion struct {
	Name     string           `toml:"name" yaml:"name"`
	Profiles []CatalogProfile `toml:"profiles" yaml:"profiles"`
}

// CatalogProfile is one profile definition; Config maps pid to properties.
type CatalogProfile struct {
	Name    string                       `toml:"name" yaml:"name"`
	Parents []string                     `toml:"parents" yaml:"parents"`
	Config  map[string]map[string]string `toml:"config" yaml:"config"`
}

// LoadCatalog reads a .toml, .yaml, or .yml catalog file.
func LoadCatalog(path string) (Catalog, error) {
	var cat Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cat); err != nil {
			return Catalog{}, fmt.Errorf("load catalog %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("load catalog %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
		}
	default:
		return Catalog{}, fmt.Errorf("%w: %s", ErrUnsupportedCatalog, path)
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// Validate checks names and that the default version is defined.
func (c Catalog) Validate() error {
	if len(c.Versions) == 0 {
		return fmt.Errorf("catalog defines no versions")
	}
	seen := make(map[string]struct{}, len(c.Versions))
	for i, v := range c.Versions {
		name := strings.TrimSpace(v.Name)
		if !isValidName(name) {
			return fmt.Errorf("versions[%d]: %w: %q", i, ErrInvalidName, v.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("versions[%d]: %w: %s", i, ErrVersionExists, name)
		}
		seen[name] = struct{}{}
		for j, p := range v.Profiles {
			if !isValidName(strings.TrimSpace(p.Name)) {
				return fmt.Errorf("versions[%d].profiles[%d]: %w: %q", i, j, ErrInvalidName, p.Name)
			}
		}
	}
	if def := strings.TrimSpace(c.DefaultVersion); def != "" {
		if _, ok := seen[def]; !ok {
			return fmt.Errorf("default_version %q: %w", def, ErrVersionNotFound)
		}
	}
	return nil
}

// LoadCatalog registers every version and profile in cat.
func (m *Memory) LoadCatalog(cat Catalog) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	def := strings.TrimSpace(cat.DefaultVersion)
	for _, v := range cat.Versions {
		name := strings.TrimSpace(v.Name)
		if err := m.AddVersion(fleet.Version{Name: name, Default: name == def}); err != nil {
			return err
		}
		for _, p := range v.Profiles {
			err := m.AddProfile(fleet.Profile{
				Name:    strings.TrimSpace(p.Name),
				Version: name,
				Parents: p.Parents,
				Config:  p.Config,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
