package popopt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// BuildContext configures the build of one version of one package.
// It is created once per package build and never modified afterwards.
type BuildContext struct {
	Package      *PackageSpec
	Profile      ArchitectureProfile
	Distribution string
	// Version is the upstream version we build
	Version string
	// Dir holds the stage directories of this version
	Dir string

	// Rebuild discards and redoes stages which are already complete
	Rebuild bool
	// Retry discards and redoes stages left partial by an earlier run
	Retry bool
}

// Policy returns the stage policy of this build
func (c *BuildContext) Policy() StagePolicy {
	return StagePolicy{Rebuild: c.Rebuild, Retry: c.Retry}
}

type buildOptions struct {
	Runner              CommandRunner
	Comparer            VersionComparer
	Reporter            Reporter
	Interrupt           *Interrupt
	Rebuild             bool
	Retry               bool
	MaxConcurrentBuilds int64
}

// BuildOption configures the build behaviour
type BuildOption func(*buildOptions) error

// WithRunner configures how external tools are run
func WithRunner(runner CommandRunner) BuildOption {
	return func(opts *buildOptions) error {
		opts.Runner = runner
		return nil
	}
}

// WithVersionComparer replaces the dpkg based version comparison
func WithVersionComparer(cmp VersionComparer) BuildOption {
	return func(opts *buildOptions) error {
		opts.Comparer = cmp
		return nil
	}
}

// WithReporter sets the reporter which is notified about the build progress
func WithReporter(reporter Reporter) BuildOption {
	return func(opts *buildOptions) error {
		opts.Reporter = reporter
		return nil
	}
}

// WithInterrupt sets the flag checked between stages
func WithInterrupt(intr *Interrupt) BuildOption {
	return func(opts *buildOptions) error {
		opts.Interrupt = intr
		return nil
	}
}

// WithRebuild discards complete stages and builds them again
func WithRebuild(rebuild bool) BuildOption {
	return func(opts *buildOptions) error {
		opts.Rebuild = rebuild
		return nil
	}
}

// WithRetry discards partial stages left behind by interrupted or failed builds
func WithRetry(retry bool) BuildOption {
	return func(opts *buildOptions) error {
		opts.Retry = retry
		return nil
	}
}

// WithMaxConcurrentBuilds limits the number of sbuild processes running at the same time
func WithMaxConcurrentBuilds(n int64) BuildOption {
	return func(opts *buildOptions) error {
		if n < 0 {
			return xerrors.Errorf("maxConcurrentBuilds must be >= 0")
		}
		opts.MaxConcurrentBuilds = n
		return nil
	}
}

func applyBuildOpts(opts []BuildOption) (buildOptions, error) {
	options := buildOptions{
		Runner:   ExecRunner{},
		Reporter: NoopReporter{},
	}
	for _, opt := range opts {
		err := opt(&options)
		if err != nil {
			return options, err
		}
	}
	if options.Comparer == nil {
		options.Comparer = DpkgComparer{Runner: options.Runner}
	}
	if options.Interrupt == nil {
		options.Interrupt = &Interrupt{}
	}
	return options, nil
}

// Builder builds packages of a workspace for one micro-architecture profile
type Builder struct {
	buildOptions

	Workspace Workspace
	Profile   ArchitectureProfile
	BuildID   string

	Versions *VersionSource
	Sources  *SourcePreparer
	Archs    *ArchBuilder
}

// NewBuilder produces a builder for the workspace and profile
func NewBuilder(ws Workspace, profile ArchitectureProfile, opts ...BuildOption) (*Builder, error) {
	options, err := applyBuildOpts(opts)
	if err != nil {
		return nil, err
	}
	err = ws.Validate()
	if err != nil {
		return nil, err
	}

	var limit *semaphore.Weighted
	if options.MaxConcurrentBuilds > 0 {
		limit = semaphore.NewWeighted(options.MaxConcurrentBuilds)
	}

	b := &Builder{
		buildOptions: options,
		Workspace:    ws,
		Profile:      profile,
		BuildID:      uuid.New().String(),
	}
	b.Versions = &VersionSource{
		Runner:   options.Runner,
		Comparer: options.Comparer,
		Chroot:   ws.ChrootName(ws.PrimaryArchitecture),
	}
	b.Sources = &SourcePreparer{
		Runner:    options.Runner,
		Reporter:  options.Reporter,
		Workspace: &b.Workspace,
	}
	b.Archs = &ArchBuilder{
		Runner:    options.Runner,
		Reporter:  options.Reporter,
		Workspace: &b.Workspace,
		Limit:     limit,
	}
	return b, nil
}

// ArchResult is the outcome of building a package for one machine architecture
type ArchResult struct {
	Arch     string
	Artifact *BuildArtifact
	Err      error
}

// PackageResult is the outcome of building a package for all machine architectures
type PackageResult struct {
	Package *PackageSpec
	Version string
	Source  *SourceArtifact
	// Err is set when the package failed before any architecture build started
	Err   error
	Archs map[string]*ArchResult

	// Linked counts the files newly linked into the pool
	Linked  int
	PoolErr error

	Duration time.Duration
}

// Failed returns true if the package or any of its architecture builds failed
func (r *PackageResult) Failed() bool {
	if r.Err != nil || r.PoolErr != nil {
		return true
	}
	for _, a := range r.Archs {
		if a.Err != nil {
			return true
		}
	}
	return false
}

// Artifacts returns the files of all successful architecture builds
func (r *PackageResult) Artifacts() []string {
	var res []string
	for _, arch := range r.SortedArchs() {
		a := r.Archs[arch]
		if a.Err != nil || a.Artifact == nil {
			continue
		}
		res = append(res, a.Artifact.Files...)
	}
	return res
}

// SortedArchs returns the architectures of this result in lexical order
func (r *PackageResult) SortedArchs() []string {
	res := make([]string, 0, len(r.Archs))
	for a := range r.Archs {
		res = append(res, a)
	}
	sort.Strings(res)
	return res
}

// BuildSummary collects the results of a build run
type BuildSummary struct {
	BuildID  string
	Packages []*PackageResult
}

// Failed returns the results of all failed packages
func (s *BuildSummary) Failed() []*PackageResult {
	var res []*PackageResult
	for _, p := range s.Packages {
		if p.Failed() {
			res = append(res, p)
		}
	}
	return res
}

// Err summarises failures of the run, or returns nil if everything was built
func (s *BuildSummary) Err() error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}

	names := make([]string, len(failed))
	for i, p := range failed {
		names[i] = p.Package.Name
	}
	return xerrors.Errorf("%d of %d packages failed: %s", len(failed), len(s.Packages), strings.Join(names, ", "))
}

// pendingBuild is a package whose architecture builds are running
type pendingBuild struct {
	result  *PackageResult
	started time.Time
	group   errgroup.Group
}

// BuildPackage resolves, prepares and builds a single package for all workspace
// architectures. A failing architecture does not affect its siblings.
func (b *Builder) BuildPackage(pkg *PackageSpec) *PackageResult {
	return b.wait(b.startPackage(pkg))
}

// startPackage resolves the version and prepares the source of pkg, then starts one
// worker per architecture and returns without waiting for them.
func (b *Builder) startPackage(pkg *PackageSpec) *pendingBuild {
	p := &pendingBuild{
		result: &PackageResult{
			Package: pkg,
			Archs:   make(map[string]*ArchResult),
		},
		started: time.Now(),
	}
	res := p.result

	b.Reporter.PackageBuildStarted(pkg)

	err := b.Interrupt.Checkpoint()
	if err != nil {
		res.Err = err
		return p
	}
	version, err := b.Versions.Resolve(pkg.Name, b.Workspace.Distribution)
	if err != nil {
		res.Err = err
		return p
	}
	res.Version = version

	dir := filepath.Join(b.Workspace.PackageWorkDir(b.Profile, pkg), version)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		res.Err = xerrors.Errorf("cannot create version directory: %w", err)
		return p
	}
	log.WithFields(log.Fields{
		"package": pkg.Name,
		"version": version,
		"dir":     dir,
	}).Info("building package")

	ctx := &BuildContext{
		Package:      pkg,
		Profile:      b.Profile,
		Distribution: b.Workspace.Distribution,
		Version:      version,
		Dir:          dir,
		Rebuild:      b.Rebuild,
		Retry:        b.Retry,
	}

	err = b.Interrupt.Checkpoint()
	if err != nil {
		res.Err = err
		return p
	}
	src, err := b.Sources.Prepare(pkg, ctx)
	if err != nil {
		res.Err = err
		return p
	}
	res.Source = src

	// all results exist before the first worker starts, so workers never write to the map
	for _, arch := range b.Workspace.Architectures {
		res.Archs[arch] = &ArchResult{Arch: arch}
	}
	for _, arch := range b.Workspace.Architectures {
		ar := res.Archs[arch]
		p.group.Go(func() error {
			b.buildArch(src, ar, ctx)
			return nil
		})
	}
	return p
}

// buildArch runs a single architecture build and records its outcome in ar
func (b *Builder) buildArch(src *SourceArtifact, ar *ArchResult, ctx *BuildContext) {
	defer func() {
		if r := recover(); r != nil {
			ar.Artifact = nil
			ar.Err = WorkerPanicErr{Value: r}
		}
		if ar.Err != nil {
			log.WithError(ar.Err).WithField("package", ctx.Package.Name).WithField("arch", ar.Arch).Error("architecture build failed")
		}
		b.Reporter.ArchBuildFinished(ctx.Package, ar.Arch, ar.Err)
	}()

	err := b.Interrupt.Checkpoint()
	if err != nil {
		ar.Err = err
		return
	}
	ar.Artifact, ar.Err = b.Archs.BuildOne(src, ar.Arch, ctx)
}

// wait joins all architecture workers of a package
func (b *Builder) wait(p *pendingBuild) *PackageResult {
	// workers report through their results and never return an error
	_ = p.group.Wait()

	p.result.Duration = time.Since(p.started)
	if p.result.Err != nil {
		log.WithError(p.result.Err).WithField("package", p.result.Package.Name).Error("package build failed")
	}
	b.Reporter.PackageBuildFinished(p.result.Package, p.result)
	return p.result
}

// Build builds all packages and links their artifacts into the pool.
//
// Packages are prepared one after the other, but the architecture builds of a package
// keep running while the next package is prepared. Aggregation starts once every
// build has finished. Failures are recorded per package and never stop the run.
func (b *Builder) Build(pkgs []*PackageSpec) (*BuildSummary, error) {
	summary := &BuildSummary{BuildID: b.BuildID}

	b.Reporter.BuildStarted(b.BuildID, pkgs)
	log.WithFields(log.Fields{
		"build":     b.BuildID,
		"microarch": b.Profile.MicroarchName(),
		"packages":  len(pkgs),
	}).Info("build started")

	pending := make([]*pendingBuild, 0, len(pkgs))
	for _, pkg := range pkgs {
		pending = append(pending, b.startPackage(pkg))
	}
	for _, p := range pending {
		summary.Packages = append(summary.Packages, b.wait(p))
	}

	poolDir := b.Workspace.PackagePoolDir(b.Profile)
	for _, res := range summary.Packages {
		files := res.Artifacts()
		if len(files) == 0 {
			continue
		}
		res.Linked, res.PoolErr = Aggregate(res.Package.Name, files, poolDir)
		if res.PoolErr != nil {
			log.WithError(res.PoolErr).WithField("package", res.Package.Name).Error("cannot link artifacts into pool")
		}
	}

	err := summary.Err()
	b.Reporter.BuildFinished(summary, err)
	return summary, err
}

// Plan resolves the version of every package and reports the state of its stages
// without doing any work.
func (b *Builder) Plan(pkgs []*PackageSpec) ([]PackageStatus, error) {
	res := make([]PackageStatus, 0, len(pkgs))
	for _, pkg := range pkgs {
		version, err := b.Versions.Resolve(pkg.Name, b.Workspace.Distribution)
		if err != nil {
			return nil, xerrors.Errorf("cannot plan %s: %w", pkg.Name, err)
		}

		dir := filepath.Join(b.Workspace.PackageWorkDir(b.Profile, pkg), version)
		vs, err := InspectVersion(dir, version, b.Workspace.Architectures)
		if err != nil {
			return nil, err
		}
		res = append(res, PackageStatus{Package: pkg, Versions: []VersionStatus{vs}})
	}
	return res, nil
}

func (r *ArchResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Arch, r.Err)
	}
	if r.Artifact == nil {
		return fmt.Sprintf("%s: no artifact", r.Arch)
	}
	return fmt.Sprintf("%s: %d files", r.Arch, len(r.Artifact.Files))
}
