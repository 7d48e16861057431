package popopt

import (
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	// EnvvarWorkspaceRoot names the environment variable we take the workspace root from
	EnvvarWorkspaceRoot = "POPOPT_WORKSPACE_ROOT"

	// EnvvarBuildDir names the environment variable which overrides the workspace build dir
	EnvvarBuildDir = "POPOPT_BUILD_DIR"

	// EnvvarPoolDir names the environment variable which overrides the workspace pool dir
	EnvvarPoolDir = "POPOPT_POOL_DIR"

	// WorkspaceFile is the name of the file marking a workspace root
	WorkspaceFile = "WORKSPACE.yaml"
)

// Workspace is the root of all operations. It configures which distribution and
// machine architectures we build for and where sources, build trees and the pool live.
type Workspace struct {
	Distribution        string   `yaml:"distribution"`
	VendorTag           string   `yaml:"vendorTag,omitempty"`
	Architectures       []string `yaml:"architectures,omitempty"`
	PrimaryArchitecture string   `yaml:"primaryArchitecture,omitempty"`

	MicroarchDir string `yaml:"microarchDir,omitempty"`
	PackageDir   string `yaml:"packageDir,omitempty"`
	BuildDir     string `yaml:"buildDir,omitempty"`
	PoolDir      string `yaml:"poolDir,omitempty"`

	Sbuild SbuildConfig `yaml:"sbuild,omitempty"`

	Origin string `yaml:"-"`
}

// SbuildConfig configures the chroots the package tools run in
type SbuildConfig struct {
	// BuildRoot is the host directory which is mounted as ChrootBuildRoot inside the chroots
	BuildRoot       string `yaml:"buildRoot,omitempty"`
	ChrootBuildRoot string `yaml:"chrootBuildRoot,omitempty"`
	// ChrootSuffix is appended to <dist>-<arch> to name a chroot
	ChrootSuffix      string   `yaml:"chrootSuffix,omitempty"`
	Mirror            string   `yaml:"mirror,omitempty"`
	ExtraRepositories []string `yaml:"extraRepositories,omitempty"`
	ChangelogMessage  string   `yaml:"changelogMessage,omitempty"`
}

func defaultWorkspace() Workspace {
	return Workspace{
		VendorTag:           "popopt",
		Architectures:       []string{"amd64", "i386"},
		PrimaryArchitecture: "amd64",
		MicroarchDir:        filepath.Join("arch", "x86_64"),
		PackageDir:          "pkg",
		BuildDir:            "build",
		PoolDir:             "pool",
		Sbuild: SbuildConfig{
			BuildRoot:        "/var/lib/sbuild/build",
			ChrootBuildRoot:  "/build",
			ChrootSuffix:     "popopt",
			Mirror:           "http://us.archive.ubuntu.com/ubuntu/",
			ChangelogMessage: "Pop!_OS Optimizations",
		},
	}
}

// LoadWorkspace loads the workspace rooted at path. Unset values are filled in
// from the defaults. Relative directories are resolved against the workspace root.
func LoadWorkspace(path string) (Workspace, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return Workspace{}, err
	}

	fc, err := os.ReadFile(filepath.Join(root, WorkspaceFile))
	if err != nil {
		return Workspace{}, xerrors.Errorf("cannot read workspace file: %w", err)
	}

	var ws Workspace
	err = yaml.Unmarshal(fc, &ws)
	if err != nil {
		return Workspace{}, xerrors.Errorf("cannot parse workspace file: %w", err)
	}

	err = mergo.Merge(&ws, defaultWorkspace())
	if err != nil {
		return Workspace{}, err
	}

	if v := os.Getenv(EnvvarBuildDir); v != "" {
		ws.BuildDir = v
	}
	if v := os.Getenv(EnvvarPoolDir); v != "" {
		ws.PoolDir = v
	}

	ws.Origin = root
	for _, p := range []*string{&ws.MicroarchDir, &ws.PackageDir, &ws.BuildDir, &ws.PoolDir, &ws.Sbuild.BuildRoot} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}

	err = ws.Validate()
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// Validate checks the workspace for consistency
func (ws *Workspace) Validate() error {
	if ws.Distribution == "" {
		return xerrors.Errorf("workspace has no distribution")
	}
	if len(ws.Architectures) == 0 {
		return xerrors.Errorf("workspace has no architectures")
	}

	seen := make(map[string]struct{}, len(ws.Architectures))
	for _, a := range ws.Architectures {
		if _, exists := seen[a]; exists {
			return xerrors.Errorf("architecture \"%s\" is listed twice", a)
		}
		seen[a] = struct{}{}
	}
	if _, ok := seen[ws.PrimaryArchitecture]; !ok {
		return xerrors.Errorf("primary architecture \"%s\" is not one of the workspace architectures %v", ws.PrimaryArchitecture, ws.Architectures)
	}
	return nil
}

// Packages loads all package specs of this workspace
func (ws *Workspace) Packages() ([]*PackageSpec, error) {
	return LoadAllPackageSpecs(ws.PackageDir)
}

// Microarchs loads all micro-architecture profiles of this workspace
func (ws *Workspace) Microarchs() ([]*Microarch, error) {
	return LoadAllMicroarchs(ws.MicroarchDir)
}

// PackageWorkDir is where all versions of a package are built for a particular profile
func (ws *Workspace) PackageWorkDir(profile ArchitectureProfile, pkg *PackageSpec) string {
	return filepath.Join(ws.BuildDir, ws.Distribution, profile.MicroarchName(), pkg.Name)
}

// PackagePoolDir is the pool root for a particular profile
func (ws *Workspace) PackagePoolDir(profile ArchitectureProfile) string {
	return filepath.Join(ws.PoolDir, ws.Distribution, profile.MicroarchName())
}

// ChrootName returns the name of the build chroot for an architecture
func (ws *Workspace) ChrootName(arch string) string {
	return ws.Distribution + "-" + arch + "-" + ws.Sbuild.ChrootSuffix
}
