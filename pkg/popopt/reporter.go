package popopt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"github.com/segmentio/textio"
	log "github.com/sirupsen/logrus"
)

// Reporter provides feedback about the build progress to the user.
//
// Implementers beware: these functions are called from the build workers, concurrently
// for different architectures. Blocking in them blocks the build.
type Reporter interface {
	// BuildStarted is called once before the first package is started
	BuildStarted(buildID string, pkgs []*PackageSpec)

	// BuildFinished is called once after all packages were built and aggregated
	BuildFinished(summary *BuildSummary, err error)

	// PackageBuildStarted is called before the version of a package is resolved
	PackageBuildStarted(pkg *PackageSpec)

	// PackageBuildLog is called whenever a tool produced output. Source preparation
	// output is reported with arch "source".
	PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte)

	// ArchBuildFinished is called when the build for one architecture is done. If err is
	// not nil that build failed.
	ArchBuildFinished(pkg *PackageSpec, arch string, err error)

	// PackageBuildFinished is called when all architecture builds of a package are done
	PackageBuildFinished(pkg *PackageSpec, res *PackageResult)
}

// NoopReporter discards all progress
type NoopReporter struct{}

func (NoopReporter) BuildStarted(buildID string, pkgs []*PackageSpec) {}
func (NoopReporter) BuildFinished(summary *BuildSummary, err error) {}
func (NoopReporter) PackageBuildStarted(pkg *PackageSpec) {}
func (NoopReporter) PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte) {}
func (NoopReporter) ArchBuildFinished(pkg *PackageSpec, arch string, err error) {}
func (NoopReporter) PackageBuildFinished(pkg *PackageSpec, res *PackageResult) {}

// CompositeReporter forwards all calls to each of its reporters
type CompositeReporter []Reporter

var _ Reporter = CompositeReporter{}

func (cr CompositeReporter) BuildStarted(buildID string, pkgs []*PackageSpec) {
	for _, r := range cr {
		r.BuildStarted(buildID, pkgs)
	}
}

func (cr CompositeReporter) BuildFinished(summary *BuildSummary, err error) {
	for _, r := range cr {
		r.BuildFinished(summary, err)
	}
}

func (cr CompositeReporter) PackageBuildStarted(pkg *PackageSpec) {
	for _, r := range cr {
		r.PackageBuildStarted(pkg)
	}
}

func (cr CompositeReporter) PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte) {
	for _, r := range cr {
		r.PackageBuildLog(pkg, arch, isErr, buf)
	}
}

func (cr CompositeReporter) ArchBuildFinished(pkg *PackageSpec, arch string, err error) {
	for _, r := range cr {
		r.ArchBuildFinished(pkg, arch, err)
	}
}

func (cr CompositeReporter) PackageBuildFinished(pkg *PackageSpec, res *PackageResult) {
	for _, r := range cr {
		r.PackageBuildFinished(pkg, res)
	}
}

// ConsoleReporter reports build progress by printing to a terminal
type ConsoleReporter struct {
	out    io.Writer
	writer map[string]io.Writer
	times  map[string]time.Time
	mu     sync.RWMutex

	now func() time.Time
}

// exclusiveWriter makes a write an exclusive resource by protecting Write calls with a mutex.
type exclusiveWriter struct {
	O  io.Writer
	mu sync.Mutex
}

func (w *exclusiveWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.O.Write(p)
}

// NewConsoleReporter produces a reporter writing to out, or stdout if out is nil
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{
		out:    &exclusiveWriter{O: out},
		writer: make(map[string]io.Writer),
		times:  make(map[string]time.Time),
		now:    time.Now,
	}
}

func (r *ConsoleReporter) getWriter(pkg *PackageSpec, arch string) io.Writer {
	name := pkg.FullName() + "/" + arch

	r.mu.RLock()
	res, ok := r.writer[name]
	r.mu.RUnlock()
	if ok {
		return res
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok = r.writer[name]
	if ok {
		// someone else was quicker in the meantime and created a new writer.
		return res
	}
	// stdout and stderr of a command share this writer and are copied on different goroutines
	res = &exclusiveWriter{O: textio.NewPrefixWriter(r.out, color.Gray.Render(fmt.Sprintf("[%s] ", name)))}
	r.writer[name] = res
	return res
}

// BuildStarted prints the packages about to be built
func (r *ConsoleReporter) BuildStarted(buildID string, pkgs []*PackageSpec) {
	io.WriteString(r.out, color.Sprintf("<white>build %s</> <gray>(%d packages)</>\n", buildID, len(pkgs)))
}

// BuildFinished prints a summary table of all packages and architectures
func (r *ConsoleReporter) BuildFinished(summary *BuildSummary, err error) {
	tw := tabwriter.NewWriter(r.out, 0, 2, 2, ' ', 0)
	for _, p := range summary.Packages {
		if p.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", color.Red.Sprint("✗"), p.Package.Name, p.Version, p.Err)
			continue
		}
		for _, arch := range p.SortedArchs() {
			a := p.Archs[arch]
			switch {
			case a.Err != nil:
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s: %s\n", color.Red.Sprint("✗"), p.Package.Name, p.Version, arch, a.Err)
			case a.Artifact != nil && a.Artifact.Cached:
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s: %s\n", color.Green.Sprint("📦"), p.Package.Name, p.Version, arch, color.Gray.Sprintf("cached, %d files", len(a.Artifact.Files)))
			case a.Artifact != nil:
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s: %d files\n", color.Green.Sprint("✓"), p.Package.Name, p.Version, arch, len(a.Artifact.Files))
			}
		}
		if p.PoolErr != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\tpool: %s\n", color.Red.Sprint("✗"), p.Package.Name, p.Version, p.PoolErr)
		}
	}
	tw.Flush()

	if err != nil {
		io.WriteString(r.out, color.Sprintf("<red>build failed</>\n<white>Reason:</> %s\n", err))
		return
	}
	io.WriteString(r.out, color.Sprint("\n<green>build succeeded</>\n"))
}

// PackageBuildStarted records the start time of a package
func (r *ConsoleReporter) PackageBuildStarted(pkg *PackageSpec) {
	r.mu.Lock()
	r.times[pkg.FullName()] = r.now()
	r.mu.Unlock()

	io.WriteString(r.getWriter(pkg, sourceLogArch), color.Sprint("<fg=yellow>package build started</>\n"))
}

// PackageBuildLog forwards tool output prefixed with package and architecture
func (r *ConsoleReporter) PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte) {
	r.getWriter(pkg, arch).Write(buf)
}

// ArchBuildFinished prints the outcome of an architecture build
func (r *ConsoleReporter) ArchBuildFinished(pkg *PackageSpec, arch string, err error) {
	out := r.getWriter(pkg, arch)
	msg := color.Sprint("<green>build succeeded</>\n")
	if err != nil {
		msg = color.Sprintf("<red>build failed</>\n<white>Reason:</> %s\n", err)
	}
	io.WriteString(out, msg)
}

// PackageBuildFinished prints how long the package took
func (r *ConsoleReporter) PackageBuildFinished(pkg *PackageSpec, res *PackageResult) {
	name := pkg.FullName()

	r.mu.Lock()
	dur := r.now().Sub(r.times[name])
	delete(r.times, name)
	r.mu.Unlock()

	out := r.getWriter(pkg, sourceLogArch)
	if res.Err != nil {
		io.WriteString(out, color.Sprintf("<red>package build failed</>\n<white>Reason:</> %s\n", res.Err))
		return
	}
	io.WriteString(out, color.Sprintf("<green>package build done</> <gray>(version %s, %.2fs)</>\n", res.Version, dur.Seconds()))
}

// LogReporter reports build progress as log entries, one per event and per line of tool output
type LogReporter struct {
	Logger *log.Logger
}

var _ Reporter = &LogReporter{}

// NewLogReporter produces a reporter logging to logger, or the standard logger if logger is nil
func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogReporter{Logger: logger}
}

func (r *LogReporter) BuildStarted(buildID string, pkgs []*PackageSpec) {
	r.Logger.WithField("build", buildID).WithField("packages", len(pkgs)).Info("build started")
}

func (r *LogReporter) BuildFinished(summary *BuildSummary, err error) {
	entry := r.Logger.WithField("build", summary.BuildID).WithField("failed", len(summary.Failed()))
	if err != nil {
		entry.WithError(err).Error("build failed")
		return
	}
	entry.Info("build succeeded")
}

func (r *LogReporter) PackageBuildStarted(pkg *PackageSpec) {
	r.Logger.WithField("package", pkg.FullName()).Info("package build started")
}

// PackageBuildLog logs every line of buf. Tool output is logged at debug level, stderr at warn level.
func (r *LogReporter) PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte) {
	entry := r.Logger.WithField("package", pkg.FullName()).WithField("arch", arch)
	for _, line := range strings.Split(strings.TrimRight(string(buf), "\n"), "\n") {
		if line == "" {
			continue
		}
		if isErr {
			entry.Warn(line)
		} else {
			entry.Debug(line)
		}
	}
}

func (r *LogReporter) ArchBuildFinished(pkg *PackageSpec, arch string, err error) {
	entry := r.Logger.WithField("package", pkg.FullName()).WithField("arch", arch)
	if err != nil {
		entry.WithError(err).Error("architecture build failed")
		return
	}
	entry.Info("architecture build succeeded")
}

func (r *LogReporter) PackageBuildFinished(pkg *PackageSpec, res *PackageResult) {
	entry := r.Logger.WithField("package", pkg.FullName()).WithField("version", res.Version)
	if res.Err != nil {
		entry.WithError(res.Err).Error("package build failed")
		return
	}
	entry.WithField("artifacts", len(res.Artifacts())).Info("package build done")
}
