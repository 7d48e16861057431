package testutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pop-os/popopt/pkg/popopt"
)

const (
	// fakeSourceFile holds the source content patches operate on
	fakeSourceFile = "content"
	// fakeNameFile and fakeVersionFile carry metadata from one fake tool to the next
	fakeNameFile    = "SOURCE"
	fakeVersionFile = "VERSION"
)

// FakeTools emulates the Debian tool chain on the local filesystem. It produces the
// files the real tools would produce, in the places the pipeline looks for them.
//
// Fake patches replace the whole source content: a patch file consists of a line
// "- <expected content>" followed by "+ <new content>". Applying a patch to any other
// content fails, which makes the order of patches observable.
type FakeTools struct {
	// BuildRoot and ChrootBuildRoot map chroot paths to the host
	BuildRoot       string
	ChrootBuildRoot string

	// Listings maps a source package to the output of "apt-cache showsrc"
	Listings map[string]string
	// VersionRank orders versions for "dpkg --compare-versions". Unknown versions rank 0.
	VersionRank map[string]int
	// SourceContent is the content of freshly extracted sources
	SourceContent string
	// NoSource lists packages the source download silently produces nothing for
	NoSource map[string]bool
	// FailArchs lists architectures sbuild fails for
	FailArchs map[string]bool
	// PanicArchs lists architectures the runner panics for
	PanicArchs map[string]bool

	mu    sync.Mutex
	calls []*popopt.Command
}

// NewFakeTools produces fake tools for the chroot paths of a workspace
func NewFakeTools(ws popopt.Workspace) *FakeTools {
	return &FakeTools{
		BuildRoot:       ws.Sbuild.BuildRoot,
		ChrootBuildRoot: ws.Sbuild.ChrootBuildRoot,
		Listings:        make(map[string]string),
		VersionRank:     make(map[string]int),
		SourceContent:   "original",
		NoSource:        make(map[string]bool),
		FailArchs:       make(map[string]bool),
		PanicArchs:      make(map[string]bool),
	}
}

// Calls returns all commands run so far, in order
func (f *FakeTools) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := make([]string, len(f.calls))
	for i, c := range f.calls {
		res[i] = c.String()
	}
	return res
}

// CallsTo returns the commands run so far whose name or chroot command is name
func (f *FakeTools) CallsTo(name string) []*popopt.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []*popopt.Command
	for _, c := range f.calls {
		if c.Name == name {
			res = append(res, c)
			continue
		}
		if inner, _ := schrootCommand(c.Args); len(inner) > 0 && inner[0] == name {
			res = append(res, c)
		}
	}
	return res
}

// Reset forgets all recorded commands
func (f *FakeTools) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// Run emulates cmd
func (f *FakeTools) Run(cmd *popopt.Command) error {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	switch cmd.Name {
	case "schroot":
		return f.schroot(cmd)
	case "dpkg":
		return f.compareVersions(cmd)
	case "dpkg-source":
		if len(cmd.Args) > 0 && cmd.Args[0] == "--extract" {
			return f.extract(cmd)
		}
		return f.buildSource(cmd)
	case "cp":
		return copyTree(cmd.Args[len(cmd.Args)-2], cmd.Args[len(cmd.Args)-1])
	case "patch":
		return f.patch(cmd)
	case "dch":
		return f.dch(cmd)
	case "sbuild":
		return f.sbuild(cmd)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func fail(cmd *popopt.Command, status int, msg string) error {
	if cmd.Stderr != nil {
		io.WriteString(cmd.Stderr, msg+"\n")
	}
	return popopt.CommandFailedErr{Command: cmd.Argv(), ExitStatus: status}
}

// schrootCommand returns the command run inside the chroot and the --directory value
func schrootCommand(args []string) (inner []string, dir string) {
	for i, a := range args {
		if a == "--directory" && i+1 < len(args) {
			dir = args[i+1]
		}
		if a == "--" {
			return args[i+1:], dir
		}
	}
	return nil, dir
}

func (f *FakeTools) schroot(cmd *popopt.Command) error {
	inner, dir := schrootCommand(cmd.Args)
	if len(inner) == 0 {
		return fail(cmd, 1, "no command")
	}

	switch inner[0] {
	case "apt-cache":
		name := inner[len(inner)-1]
		listing, ok := f.Listings[name]
		if !ok {
			return fail(cmd, 100, fmt.Sprintf("E: Unable to find a source package for %s", name))
		}
		if cmd.Stdout != nil {
			io.WriteString(cmd.Stdout, listing)
		}
		return nil
	case "apt-get":
		name, version, _ := strings.Cut(inner[len(inner)-1], "=")
		if f.NoSource[name] {
			return nil
		}
		hostDir := filepath.Join(f.BuildRoot, strings.TrimPrefix(dir, f.ChrootBuildRoot))
		dsc := filepath.Join(hostDir, name+"_"+stripEpoch(version)+".dsc")
		return os.WriteFile(dsc, []byte(fmt.Sprintf("Source: %s\nVersion: %s\n", name, version)), 0644)
	default:
		return fail(cmd, 127, inner[0]+": command not found")
	}
}

func (f *FakeTools) compareVersions(cmd *popopt.Command) error {
	if len(cmd.Args) != 4 || cmd.Args[0] != "--compare-versions" || cmd.Args[2] != "gt" {
		return fail(cmd, 2, "unsupported comparison")
	}
	if f.VersionRank[cmd.Args[1]] > f.VersionRank[cmd.Args[3]] {
		return nil
	}
	return popopt.CommandFailedErr{Command: cmd.Argv(), ExitStatus: 1}
}

func (f *FakeTools) extract(cmd *popopt.Command) error {
	dsc, dst := cmd.Args[1], cmd.Args[2]
	fc, err := os.ReadFile(dsc)
	if err != nil {
		return fail(cmd, 2, err.Error())
	}
	name := strings.TrimPrefix(strings.SplitN(string(fc), "\n", 2)[0], "Source: ")

	err = os.MkdirAll(dst, 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(filepath.Join(dst, fakeNameFile), []byte(name), 0644)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, fakeSourceFile), []byte(f.SourceContent), 0644)
}

func (f *FakeTools) patch(cmd *popopt.Command) error {
	fc, err := os.ReadFile(cmd.Args[len(cmd.Args)-1])
	if err != nil {
		return fail(cmd, 2, err.Error())
	}
	var from, to string
	for _, line := range strings.Split(string(fc), "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			from = strings.TrimPrefix(line, "- ")
		case strings.HasPrefix(line, "+ "):
			to = strings.TrimPrefix(line, "+ ")
		}
	}

	fn := filepath.Join(cmd.Dir, fakeSourceFile)
	current, err := os.ReadFile(fn)
	if err != nil {
		return fail(cmd, 2, err.Error())
	}
	if string(current) != from {
		return fail(cmd, 1, "Hunk #1 FAILED at 1.")
	}
	return os.WriteFile(fn, []byte(to), 0644)
}

func (f *FakeTools) dch(cmd *popopt.Command) error {
	for i, a := range cmd.Args {
		if a == "--newversion" && i+1 < len(cmd.Args) {
			return os.WriteFile(filepath.Join(cmd.Dir, fakeVersionFile), []byte(cmd.Args[i+1]), 0644)
		}
	}
	return fail(cmd, 1, "no version")
}

func (f *FakeTools) buildSource(cmd *popopt.Command) error {
	src := cmd.Args[len(cmd.Args)-1]
	name, err := os.ReadFile(filepath.Join(src, fakeNameFile))
	if err != nil {
		return fail(cmd, 2, err.Error())
	}
	version, err := os.ReadFile(filepath.Join(src, fakeVersionFile))
	if err != nil {
		return fail(cmd, 2, err.Error())
	}
	content, err := os.ReadFile(filepath.Join(src, fakeSourceFile))
	if err != nil {
		return fail(cmd, 2, err.Error())
	}

	dsc := filepath.Join(cmd.Dir, string(name)+"_"+stripEpoch(string(version))+".dsc")
	return os.WriteFile(dsc, content, 0644)
}

func (f *FakeTools) sbuild(cmd *popopt.Command) error {
	var (
		arch    string
		archAll bool
	)
	for _, a := range cmd.Args {
		switch {
		case strings.HasPrefix(a, "--arch="):
			arch = strings.TrimPrefix(a, "--arch=")
		case a == "--arch-all":
			archAll = true
		}
	}

	var cfg string
	for _, e := range cmd.Env {
		if strings.HasPrefix(e, popopt.EnvvarSbuildConfig+"=") {
			cfg = strings.TrimPrefix(e, popopt.EnvvarSbuildConfig+"=")
		}
	}
	if _, err := os.Stat(cfg); err != nil {
		return fail(cmd, 2, "missing sbuild config")
	}

	if f.PanicArchs[arch] {
		panic("sbuild exploded on " + arch)
	}
	if f.FailArchs[arch] {
		return fail(cmd, 2, "E: Build failure (dpkg-buildpackage died)")
	}

	dsc := cmd.Args[len(cmd.Args)-1]
	name, version, _ := strings.Cut(strings.TrimSuffix(filepath.Base(dsc), ".dsc"), "_")

	files := []string{fmt.Sprintf("%s_%s_%s.deb", name, version, arch)}
	if archAll {
		files = append(files, fmt.Sprintf("%s-doc_%s_all.deb", name, version))
	}
	for _, fn := range files {
		err := os.WriteFile(filepath.Join(cmd.Dir, fn), []byte(arch), 0644)
		if err != nil {
			return err
		}
	}
	if cmd.Stdout != nil {
		io.WriteString(cmd.Stdout, "Status: successful\n")
	}
	return nil
}

func stripEpoch(version string) string {
	if _, v, ok := strings.Cut(version, ":"); ok {
		return v
	}
	return version
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		fc, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, fc, 0644)
	})
}
