package popopt

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/minio/highwayhash"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

const (
	// BinaryPackageExt is the extension of the files an architecture build produces
	BinaryPackageExt = ".deb"

	// EnvvarSbuildConfig names the variable pointing sbuild at the build environment descriptor
	EnvvarSbuildConfig = "SBUILD_CONFIG"

	sbuildConfigFile = "sbuild.conf"

	// environmentHashKey keys the build environment hash. Changing it changes every hash we've ever reported.
	environmentHashKey = "7f3a1c9e5b2d4f6081a3c5e7f9b1d3f5a7c9e1b3d5f7a9c1e3b5d7f9a1c3e5b7"
)

// BuildArtifact lists the binary packages one architecture build produced
type BuildArtifact struct {
	Arch string
	// Dir is the committed build stage directory
	Dir   string
	Files []string
	// Environment is the hash of the build environment the build was run with
	Environment string
	// Cached is true if the build was committed by an earlier run
	Cached bool
}

// EnvironmentEntry is a single variable of the build environment
type EnvironmentEntry struct {
	Name  string
	Value string
}

// BuildEnvironment is the set of variables sbuild exports into the package build.
// It is the only way compiler flags reach the compiler.
type BuildEnvironment []EnvironmentEntry

// NewBuildEnvironment produces the build environment for a profile
func NewBuildEnvironment(profile ArchitectureProfile, vendorTag string) BuildEnvironment {
	return BuildEnvironment{
		{Name: "DEB_CFLAGS_APPEND", Value: strings.Join(profile.CFlags(), " ")},
		{Name: "DEB_CXXFLAGS_APPEND", Value: strings.Join(profile.CXXFlags(), " ")},
		{Name: strings.ToUpper(vendorTag) + "_ARCH", Value: profile.MicroarchName()},
		{Name: "RUSTFLAGS", Value: strings.Join(profile.RustFlags(), " ")},
	}
}

// WriteSbuildConfig writes the environment as sbuild configuration
func (env BuildEnvironment) WriteSbuildConfig(out io.Writer) error {
	_, err := io.WriteString(out, "$build_environment = {\n")
	if err != nil {
		return err
	}
	for _, e := range env {
		_, err = fmt.Fprintf(out, "    '%s' => '%s',\n", perlQuote(e.Name), perlQuote(e.Value))
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(out, "};\n")
	return err
}

// Hash fingerprints the environment. Builds with the same hash see the same flags.
func (env BuildEnvironment) Hash() (string, error) {
	key, err := hex.DecodeString(environmentHashKey)
	if err != nil {
		return "", err
	}
	hash, err := highwayhash.New(key)
	if err != nil {
		return "", err
	}
	for _, e := range env {
		_, err = fmt.Fprintf(hash, "%s=%s\n", e.Name, e.Value)
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func perlQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ArchBuilder builds a prepared source package for one machine architecture
type ArchBuilder struct {
	Runner    CommandRunner
	Reporter  Reporter
	Workspace *Workspace
	// Limit bounds the number of concurrent sbuild processes if set
	Limit *semaphore.Weighted
}

func sbuildStageName(arch string) string {
	return "sbuild-" + arch
}

// BuildOne builds src for arch. It is safe to call concurrently for different architectures.
// Architecture independent packages are only built on the primary architecture.
func (a *ArchBuilder) BuildOne(src *SourceArtifact, arch string, ctx *BuildContext) (*BuildArtifact, error) {
	var (
		stage  = Stage{Dir: ctx.Dir, Name: sbuildStageName(arch)}
		env    = NewBuildEnvironment(ctx.Profile, a.Workspace.VendorTag)
		logger = log.WithField("package", ctx.Package.Name).WithField("arch", arch)
	)

	envHash, err := env.Hash()
	if err != nil {
		return nil, xerrors.Errorf("cannot hash build environment: %w", err)
	}
	logger = logger.WithField("environment", envHash)

	dir, cached, err := stage.Run(ctx.Policy(), func(dir string) error {
		return a.buildIn(dir, src, arch, env, ctx)
	})
	if err != nil {
		return nil, err
	}

	files, err := listArtifacts(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("build produced no binary packages")
	}
	logger.WithField("cached", cached).WithField("files", len(files)).Info("architecture build done")

	return &BuildArtifact{
		Arch:        arch,
		Dir:         dir,
		Files:       files,
		Environment: envHash,
		Cached:      cached,
	}, nil
}

func (a *ArchBuilder) buildIn(dir string, src *SourceArtifact, arch string, env BuildEnvironment, ctx *BuildContext) error {
	var buf bytes.Buffer
	err := env.WriteSbuildConfig(&buf)
	if err != nil {
		return err
	}
	cfgFile := filepath.Join(dir, sbuildConfigFile)
	err = os.WriteFile(cfgFile, buf.Bytes(), 0644)
	if err != nil {
		return xerrors.Errorf("cannot write sbuild config: %w", err)
	}

	if a.Limit != nil {
		err = a.Limit.Acquire(context.Background(), 1)
		if err != nil {
			return xerrors.Errorf("cannot acquire build slot: %w", err)
		}
		defer a.Limit.Release(1)
	}

	return a.Runner.Run(&Command{
		Name:   "sbuild",
		Args:   a.sbuildArgs(src, arch, ctx),
		Dir:    dir,
		Env:    []string{fmt.Sprintf("%s=%s", EnvvarSbuildConfig, cfgFile)},
		Stdout: &reporterStream{R: a.Reporter, P: ctx.Package, Arch: arch},
		Stderr: &reporterStream{R: a.Reporter, P: ctx.Package, Arch: arch, IsErr: true},
	})
}

func (a *ArchBuilder) sbuildArgs(src *SourceArtifact, arch string, ctx *BuildContext) []string {
	var (
		ws   = a.Workspace
		args []string
	)
	if arch == ws.PrimaryArchitecture {
		args = append(args, "--arch-all")
	} else {
		args = append(args, "--no-arch-all")
	}
	args = append(args,
		"--no-apt-distupgrade",
		"--quiet",
		fmt.Sprintf("--chroot=%s", ws.ChrootName(arch)),
		fmt.Sprintf("--dist=%s", ctx.Distribution),
		fmt.Sprintf("--arch=%s", arch),
	)
	for _, repo := range a.extraRepositories(ctx.Distribution) {
		args = append(args, fmt.Sprintf("--extra-repository=%s", repo))
	}
	return append(args, src.DSC)
}

func (a *ArchBuilder) extraRepositories(dist string) []string {
	cfg := a.Workspace.Sbuild
	if len(cfg.ExtraRepositories) > 0 {
		return cfg.ExtraRepositories
	}
	if cfg.Mirror == "" {
		return nil
	}

	var res []string
	for _, pocket := range []string{"updates", "security"} {
		res = append(res, fmt.Sprintf("deb %s %s-%s main restricted universe multiverse", cfg.Mirror, dist, pocket))
	}
	return res
}

// listArtifacts returns the binary packages in dir, sorted by name
func listArtifacts(dir string) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, xerrors.Errorf("cannot list build output: %w", err)
	}

	var res []string
	for _, de := range dirents {
		if !de.IsRegular() {
			continue
		}
		if filepath.Ext(de.Name()) != BinaryPackageExt {
			continue
		}
		res = append(res, filepath.Join(dir, de.Name()))
	}
	sort.Strings(res)
	return res, nil
}
