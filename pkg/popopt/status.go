package popopt

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StageStatus is the state of a single stage directory
type StageStatus struct {
	Name  string     `json:"name" yaml:"name"`
	State StageState `json:"state" yaml:"state"`
	Path  string     `json:"path" yaml:"path"`
}

// VersionStatus describes the stages of one package version
type VersionStatus struct {
	Version string        `json:"version" yaml:"version"`
	Dir     string        `json:"dir" yaml:"dir"`
	Stages  []StageStatus `json:"stages" yaml:"stages"`
}

// PackageStatus describes all known versions of a package
type PackageStatus struct {
	Package  *PackageSpec    `json:"package" yaml:"package"`
	Versions []VersionStatus `json:"versions" yaml:"versions"`
}

// MarshalText makes stage states readable in JSON and YAML output
func (s StageState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InspectVersion reports the source stage and the build stage of every architecture
func InspectVersion(dir, version string, archs []string) (VersionStatus, error) {
	res := VersionStatus{Version: version, Dir: dir}

	names := []string{sourceStageName}
	for _, a := range archs {
		names = append(names, sbuildStageName(a))
	}
	for _, n := range names {
		stage := Stage{Dir: dir, Name: n}
		state, err := stage.State()
		if err != nil {
			return res, err
		}

		path := stage.Path()
		if state == StagePartial {
			path = stage.PartialPath()
		}
		res.Stages = append(res.Stages, StageStatus{Name: n, State: state, Path: path})
	}
	return res, nil
}

// DescribePackage inspects every version directory found in the work directory of pkg.
// Architectures are taken from the workspace and from any build stages found on disk.
func DescribePackage(ws *Workspace, profile ArchitectureProfile, pkg *PackageSpec) ([]VersionStatus, error) {
	workDir := ws.PackageWorkDir(profile, pkg)
	entries, err := os.ReadDir(workDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var res []VersionStatus
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(workDir, e.Name())

		archs, err := stageArchs(dir, ws.Architectures)
		if err != nil {
			return nil, err
		}
		vs, err := InspectVersion(dir, e.Name(), archs)
		if err != nil {
			return nil, err
		}
		res = append(res, vs)
	}
	return res, nil
}

// stageArchs merges the configured architectures with those that have stage directories in dir
func stageArchs(dir string, configured []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(configured))
	res := append([]string(nil), configured...)
	for _, a := range configured {
		seen[a] = struct{}{}
	}

	var found []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), partialSuffix)
		if !e.IsDir() || !strings.HasPrefix(name, "sbuild-") {
			continue
		}
		arch := strings.TrimPrefix(name, "sbuild-")
		if _, ok := seen[arch]; ok {
			continue
		}
		seen[arch] = struct{}{}
		found = append(found, arch)
	}
	sort.Strings(found)
	return append(res, found...), nil
}
