package popopt

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// PackageSpec names a source package we rebuild and the patches we apply to it.
// Patches are applied in the order they are listed.
type PackageSpec struct {
	Name    string   `yaml:"name" json:"name"`
	Patches []string `yaml:"patches,omitempty" json:"patches,omitempty"`

	// Origin is the file this spec was loaded from
	Origin string `yaml:"-" json:"-"`
}

// FullName returns the name of the source package
func (p *PackageSpec) FullName() string {
	return p.Name
}

// PatchFiles returns the absolute paths of the patches in declared order.
// Relative patch paths are resolved against the directory of the spec file.
func (p *PackageSpec) PatchFiles() ([]string, error) {
	base := "."
	if p.Origin != "" {
		base = filepath.Dir(p.Origin)
	}

	res := make([]string, len(p.Patches))
	for i, patch := range p.Patches {
		fn := patch
		if !filepath.IsAbs(fn) {
			fn = filepath.Join(base, fn)
		}
		abs, err := filepath.Abs(fn)
		if err != nil {
			return nil, err
		}
		res[i] = abs
	}
	return res, nil
}

// LoadPackageSpec loads a single package spec file
func LoadPackageSpec(fn string) (*PackageSpec, error) {
	fc, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	var res PackageSpec
	err = yaml.Unmarshal(fc, &res)
	if err != nil {
		return nil, xerrors.Errorf("cannot parse package spec %s: %w", fn, err)
	}
	if res.Name == "" {
		return nil, xerrors.Errorf("package spec %s has no name", fn)
	}
	res.Origin = fn
	return &res, nil
}

// LoadAllPackageSpecs loads all *.yaml package specs in dir, ordered by file name.
// Package names must be unique.
func LoadAllPackageSpecs(dir string) ([]*PackageSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var fns []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		fns = append(fns, filepath.Join(dir, e.Name()))
	}
	sort.Strings(fns)

	var (
		res  = make([]*PackageSpec, 0, len(fns))
		seen = make(map[string]string)
	)
	for _, fn := range fns {
		pkg, err := LoadPackageSpec(fn)
		if err != nil {
			return nil, err
		}
		if other, exists := seen[pkg.Name]; exists {
			return nil, xerrors.Errorf("package \"%s\" is defined in both %s and %s", pkg.Name, other, fn)
		}
		seen[pkg.Name] = fn
		res = append(res, pkg)
	}
	return res, nil
}

// SelectPackages returns the packages with the given names, in the order of names.
// An empty names list selects all packages.
func SelectPackages(pkgs []*PackageSpec, names []string) ([]*PackageSpec, error) {
	if len(names) == 0 {
		return pkgs, nil
	}

	idx := make(map[string]*PackageSpec, len(pkgs))
	for _, p := range pkgs {
		idx[p.Name] = p
	}

	var (
		res     []*PackageSpec
		unknown []string
	)
	for _, n := range names {
		p, ok := idx[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		res = append(res, p)
	}
	if len(unknown) > 0 {
		return nil, xerrors.Errorf("unknown packages: %s", strings.Join(unknown, ", "))
	}
	return res, nil
}
