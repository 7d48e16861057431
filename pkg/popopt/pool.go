package popopt

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Aggregate hard-links artifacts into poolDir/packageName. Files whose name already
// exists in the pool are skipped, so aggregating again after a partial run is safe.
// Artifacts are never copied: the pool and the build tree share the same inode.
func Aggregate(packageName string, artifacts []string, poolDir string) (linked int, err error) {
	dst := filepath.Join(poolDir, packageName)
	err = os.MkdirAll(dst, 0755)
	if err != nil {
		return 0, xerrors.Errorf("cannot create pool directory: %w", err)
	}

	for _, src := range artifacts {
		target := filepath.Join(dst, filepath.Base(src))
		if _, err := os.Lstat(target); err == nil {
			log.WithField("file", target).Debug("already in pool")
			continue
		} else if !os.IsNotExist(err) {
			return linked, err
		}

		err = os.Link(src, target)
		if err != nil {
			return linked, xerrors.Errorf("cannot link %s into pool: %w", src, err)
		}
		linked++
	}

	log.WithField("package", packageName).WithField("linked", linked).WithField("total", len(artifacts)).Debug("aggregated artifacts")
	return linked, nil
}

// CommittedArtifacts returns the artifacts of all committed architecture builds of pkg,
// across all versions found in its work directory
func CommittedArtifacts(ws *Workspace, profile ArchitectureProfile, pkg *PackageSpec) ([]string, error) {
	versions, err := DescribePackage(ws, profile, pkg)
	if err != nil {
		return nil, err
	}

	var res []string
	for _, v := range versions {
		for _, s := range v.Stages {
			if s.Name == sourceStageName || s.State != StageComplete {
				continue
			}
			files, err := listArtifacts(s.Path)
			if err != nil {
				return nil, err
			}
			res = append(res, files...)
		}
	}
	return res, nil
}
