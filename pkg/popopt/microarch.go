package popopt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// ArchitectureProfile describes the CPU micro-architecture we optimise for.
// The build pipeline only consumes its name, its tier level and the flags it produces.
type ArchitectureProfile interface {
	// MicroarchName identifies the micro-architecture, e.g. x86-64-v3
	MicroarchName() string
	// OptimizationLevel is the numeric tier embedded in synthetic versions
	OptimizationLevel() int

	CFlags() []string
	CXXFlags() []string
	// RustFlags are the compiler-target flags passed to rustc
	RustFlags() []string
}

// Microarch is a micro-architecture profile loaded from a profile file
type Microarch struct {
	Name     string   `yaml:"name" json:"name"`
	Level    int      `yaml:"level" json:"level"`
	Wiki     string   `yaml:"wiki,omitempty" json:"wiki,omitempty"`
	Features []string `yaml:"features" json:"features"`
}

var _ ArchitectureProfile = &Microarch{}

// MicroarchName returns the profile's name
func (m *Microarch) MicroarchName() string { return m.Name }

// OptimizationLevel returns the profile's tier
func (m *Microarch) OptimizationLevel() int { return m.Level }

// CFlags produces the flags appended to CFLAGS
func (m *Microarch) CFlags() []string {
	return []string{fmt.Sprintf("-march=%s", m.Name)}
}

// CXXFlags produces the flags appended to CXXFLAGS
func (m *Microarch) CXXFlags() []string {
	return []string{fmt.Sprintf("-march=%s", m.Name)}
}

// RustFlags produces the codegen flags for rustc
func (m *Microarch) RustFlags() []string {
	return []string{"--codegen", fmt.Sprintf("target-cpu=%s", m.Name)}
}

// CheckFeatures returns the features this profile requires which are not in cpuFeatures
func (m *Microarch) CheckFeatures(cpuFeatures []string) (missing []string) {
	available := make(map[string]struct{}, len(cpuFeatures))
	for _, f := range cpuFeatures {
		available[f] = struct{}{}
	}
	for _, f := range m.Features {
		if _, ok := available[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// LoadMicroarch loads a single profile. JSON profiles are accepted as they are valid YAML.
func LoadMicroarch(fn string) (*Microarch, error) {
	fc, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	var res Microarch
	err = yaml.Unmarshal(fc, &res)
	if err != nil {
		return nil, xerrors.Errorf("cannot parse microarch profile %s: %w", fn, err)
	}
	if res.Name == "" {
		return nil, xerrors.Errorf("microarch profile %s has no name", fn)
	}
	return &res, nil
}

// LoadAllMicroarchs loads every profile in dir, ordered by file name
func LoadAllMicroarchs(dir string) ([]*Microarch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var fns []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fns = append(fns, filepath.Join(dir, e.Name()))
	}
	sort.Strings(fns)

	res := make([]*Microarch, 0, len(fns))
	for _, fn := range fns {
		m, err := LoadMicroarch(fn)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// FindMicroarch returns the profile with the given name
func FindMicroarch(profiles []*Microarch, name string) (*Microarch, error) {
	for _, m := range profiles {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, xerrors.Errorf("unknown microarch \"%s\"", name)
}

// CPUFeatures reads the feature flags of the first CPU from /proc/cpuinfo
func CPUFeatures() ([]string, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseCPUFeatures(f)
}

func parseCPUFeatures(in io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		_, flags, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		return strings.Fields(flags), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, xerrors.Errorf("no CPU flags found")
}
