package testutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pop-os/popopt/pkg/popopt"
	"gopkg.in/yaml.v3"
)

// Setup describes a workspace on disk
type Setup struct {
	Workspace  popopt.Workspace   `yaml:"workspace"`
	Packages   []Package          `yaml:"packages"`
	Microarchs []popopt.Microarch `yaml:"microarchs"`
	// Files are written relative to the workspace root
	Files map[string]string `yaml:"files"`
}

// Package is a package spec file
type Package struct {
	// File is the name of the spec file in the package directory. Defaults to <name>.yaml.
	File string             `yaml:"file"`
	Spec popopt.PackageSpec `yaml:"spec"`
}

// LoadFromYAML loads a workspace setup from a YAML file
func LoadFromYAML(in io.Reader) (*Setup, error) {
	fc, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}

	var res Setup
	err = yaml.Unmarshal(fc, &res)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// Materialize produces a workspace according to the setup in a new temporary directory
func (s Setup) Materialize() (workspaceRoot string, err error) {
	workspaceRoot, err = os.MkdirTemp("", "popopt-test-*")
	if err != nil {
		return
	}
	err = s.MaterializeIn(workspaceRoot)
	return
}

// MaterializeIn produces a workspace according to the setup in workspaceRoot
func (s Setup) MaterializeIn(workspaceRoot string) error {
	fc, err := yaml.Marshal(s.Workspace)
	if err != nil {
		return err
	}
	err = os.WriteFile(filepath.Join(workspaceRoot, popopt.WorkspaceFile), fc, 0644)
	if err != nil {
		return err
	}

	pkgDir := resolve(workspaceRoot, s.Workspace.PackageDir, "pkg")
	err = os.MkdirAll(pkgDir, 0755)
	if err != nil {
		return err
	}
	for _, pkg := range s.Packages {
		fn := pkg.File
		if fn == "" {
			fn = pkg.Spec.Name + ".yaml"
		}
		fc, err := yaml.Marshal(pkg.Spec)
		if err != nil {
			return err
		}
		err = os.WriteFile(filepath.Join(pkgDir, fn), fc, 0644)
		if err != nil {
			return err
		}
	}

	archDir := resolve(workspaceRoot, s.Workspace.MicroarchDir, filepath.Join("arch", "x86_64"))
	err = os.MkdirAll(archDir, 0755)
	if err != nil {
		return err
	}
	for _, m := range s.Microarchs {
		fc, err := yaml.Marshal(m)
		if err != nil {
			return err
		}
		err = os.WriteFile(filepath.Join(archDir, m.Name+".yaml"), fc, 0644)
		if err != nil {
			return err
		}
	}

	for fn, content := range s.Files {
		fn = filepath.Join(workspaceRoot, fn)
		err = os.MkdirAll(filepath.Dir(fn), 0755)
		if err != nil {
			return err
		}
		err = os.WriteFile(fn, []byte(content), 0644)
		if err != nil {
			return err
		}
	}
	return nil
}

func resolve(root, dir, def string) string {
	if dir == "" {
		dir = def
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
