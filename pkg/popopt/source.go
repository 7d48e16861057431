package popopt

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	sourceStageName = "source"
	// sourceLogArch is the pseudo-architecture source preparation output is reported under
	sourceLogArch = "source"

	originalDirName = "original"
	patchedDirName  = "patched"

	// patchStripLevel is the -p level all patches are applied with
	patchStripLevel = 1
)

// SourceArtifact is the patched and re-versioned source package every architecture builds from
type SourceArtifact struct {
	// Dir is the committed source stage directory
	Dir string
	// DSC is the source control file of the re-versioned package
	DSC string
	// Version is the synthetic version of the re-versioned package
	Version string
}

// SourcePreparer fetches, extracts, patches and re-versions source packages
type SourcePreparer struct {
	Runner    CommandRunner
	Reporter  Reporter
	Workspace *Workspace
}

// Prepare produces the source artifact for the package version described by ctx.
// The work is done once per version and tier; later calls return the committed result.
func (s *SourcePreparer) Prepare(pkg *PackageSpec, ctx *BuildContext) (*SourceArtifact, error) {
	var (
		newVersion = SyntheticVersion(ctx.Version, s.Workspace.VendorTag, ctx.Profile.OptimizationLevel())
		stage      = Stage{Dir: ctx.Dir, Name: sourceStageName}
		logger     = log.WithField("package", pkg.Name).WithField("version", newVersion)
	)

	dir, cached, err := stage.Run(ctx.Policy(), func(dir string) error {
		return s.prepareIn(dir, pkg, ctx, newVersion)
	})
	if err != nil {
		return nil, err
	}

	dsc := filepath.Join(dir, dscFileName(pkg.Name, newVersion))
	if !fileExists(dsc) {
		if cached {
			return nil, StageIncompleteErr{Path: dsc}
		}
		return nil, ArtifactMissingErr{Path: dsc}
	}

	if cached {
		logger.Debug("source is already prepared")
	} else {
		logger.Info("source prepared")
	}
	return &SourceArtifact{
		Dir:     dir,
		DSC:     dsc,
		Version: newVersion,
	}, nil
}

// shareName is the scratch directory the source is downloaded to. It is unique to the
// tier, distribution, package and version so unrelated builds sharing the build root do not collide.
func (s *SourcePreparer) shareName(pkg *PackageSpec, ctx *BuildContext) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", s.Workspace.VendorTag, ctx.Profile.MicroarchName(), ctx.Distribution, pkg.Name, ctx.Version)
}

func (s *SourcePreparer) prepareIn(dir string, pkg *PackageSpec, ctx *BuildContext, newVersion string) error {
	var (
		cfg       = s.Workspace.Sbuild
		shareName = s.shareName(pkg, ctx)
		shareDir  = filepath.Join(cfg.BuildRoot, shareName)
	)

	err := ensureDirClean(shareDir)
	if err != nil {
		return xerrors.Errorf("cannot prepare download directory: %w", err)
	}

	err = s.run(pkg, &Command{
		Name: "schroot",
		Args: []string{
			"--chroot", s.Workspace.ChrootName(s.Workspace.PrimaryArchitecture),
			"--directory", cfg.ChrootBuildRoot + "/" + shareName,
			"--",
			"apt-get", "source", "--only-source", "--download-only",
			fmt.Sprintf("%s=%s", pkg.Name, ctx.Version),
		},
		Dir: ctx.Dir,
	})
	if err != nil {
		return xerrors.Errorf("cannot download source: %w", err)
	}

	dsc := filepath.Join(shareDir, dscFileName(pkg.Name, ctx.Version))
	if !fileExists(dsc) {
		return SourceNotFoundErr{Path: dsc}
	}

	originalDir := filepath.Join(dir, originalDirName)
	err = s.run(pkg, &Command{
		Name: "dpkg-source",
		Args: []string{"--extract", dsc, originalDir},
		Dir:  dir,
	})
	if err != nil {
		return xerrors.Errorf("cannot extract source: %w", err)
	}

	err = os.RemoveAll(shareDir)
	if err != nil {
		return err
	}

	// patches go into a copy, the original tree stays as it was downloaded
	patchedDir := filepath.Join(dir, patchedDirName)
	err = s.run(pkg, &Command{
		Name: "cp",
		Args: []string{"-a", originalDir, patchedDir},
		Dir:  dir,
	})
	if err != nil {
		return xerrors.Errorf("cannot copy source: %w", err)
	}

	err = s.applyPatches(pkg, patchedDir)
	if err != nil {
		return err
	}

	err = s.run(pkg, &Command{
		Name: "dch",
		Args: []string{
			"--distribution", ctx.Distribution,
			"--newversion", newVersion,
			cfg.ChangelogMessage,
		},
		Dir: patchedDir,
	})
	if err != nil {
		return xerrors.Errorf("cannot update changelog: %w", err)
	}

	err = s.run(pkg, &Command{
		Name: "dpkg-source",
		Args: []string{"--build", patchedDir},
		Dir:  dir,
	})
	if err != nil {
		return xerrors.Errorf("cannot build source package: %w", err)
	}
	return nil
}

// applyPatches applies the package's patches in the declared order and stops at the first failure
func (s *SourcePreparer) applyPatches(pkg *PackageSpec, dir string) error {
	patches, err := pkg.PatchFiles()
	if err != nil {
		return err
	}

	for i, patch := range patches {
		if !fileExists(patch) {
			return PatchFailedErr{Index: i, Path: patch, Err: os.ErrNotExist}
		}

		err := s.run(pkg, &Command{
			Name: "patch",
			Args: []string{fmt.Sprintf("-p%d", patchStripLevel), "-i", patch},
			Dir:  dir,
		})
		if err != nil {
			return PatchFailedErr{Index: i, Path: patch, Err: err}
		}
		log.WithField("package", pkg.Name).WithField("patch", patch).Debug("applied patch")
	}
	return nil
}

func (s *SourcePreparer) run(pkg *PackageSpec, cmd *Command) error {
	cmd.Stdout = &reporterStream{R: s.Reporter, P: pkg, Arch: sourceLogArch}
	cmd.Stderr = &reporterStream{R: s.Reporter, P: pkg, Arch: sourceLogArch, IsErr: true}
	return s.Runner.Run(cmd)
}
