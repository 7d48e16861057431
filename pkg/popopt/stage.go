package popopt

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// StageState is the on-disk state of a pipeline stage
type StageState int

const (
	// StageAbsent means neither the partial nor the canonical stage directory exists
	StageAbsent StageState = iota
	// StagePartial means work was started but never committed
	StagePartial
	// StageComplete means the stage was committed to its canonical directory
	StageComplete
)

func (s StageState) String() string {
	switch s {
	case StageAbsent:
		return "absent"
	case StagePartial:
		return "partial"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

const partialSuffix = ".partial"

// StagePolicy decides what happens to stages left behind by earlier runs
type StagePolicy struct {
	// Rebuild discards complete stages and redoes their work
	Rebuild bool
	// Retry discards partial stages left by an interrupted or failed run
	Retry bool
}

// Stage is a checkpointed step of the pipeline. Its work happens in "<name>.partial"
// and is committed by renaming that directory to "<name>". The rename is the only
// commit point: a stage observed under its canonical name is always complete.
//
// Stage directories are the only synchronisation we have. No two workers of the
// same run ever share a stage.
type Stage struct {
	// Dir is the directory holding the stage directories
	Dir  string
	Name string
}

// Path is the canonical location of the committed stage
func (s Stage) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

// PartialPath is the location work happens in before the stage is committed
func (s Stage) PartialPath() string {
	return s.Path() + partialSuffix
}

// State inspects the stage directories
func (s Stage) State() (StageState, error) {
	complete, err := isDir(s.Path())
	if err != nil {
		return StageAbsent, err
	}
	if complete {
		return StageComplete, nil
	}

	partial, err := isDir(s.PartialPath())
	if err != nil {
		return StageAbsent, err
	}
	if partial {
		return StagePartial, nil
	}
	return StageAbsent, nil
}

// Run executes work in the stage's partial directory and commits the stage once
// work returns without error. If the stage is already complete and no rebuild was
// requested, work is not called and cached is true.
//
// work must have written all of its output before it returns: the commit follows immediately.
// If work fails the partial directory is left in place for inspection.
func (s Stage) Run(policy StagePolicy, work func(dir string) error) (dir string, cached bool, err error) {
	var (
		completeDir = s.Path()
		partialDir  = s.PartialPath()
		logger      = log.WithField("stage", completeDir)
	)

	complete, err := isDir(completeDir)
	if err != nil {
		return "", false, err
	}
	if complete {
		if !policy.Rebuild {
			logger.Debug("stage is complete")
			return completeDir, true, nil
		}
		logger.Debug("discarding complete stage for rebuild")
		err = os.RemoveAll(completeDir)
		if err != nil {
			return "", false, xerrors.Errorf("cannot discard stage: %w", err)
		}
	}

	partial, err := isDir(partialDir)
	if err != nil {
		return "", false, err
	}
	if partial {
		if !policy.Retry {
			return "", false, StageInProgressErr{Path: partialDir}
		}
		logger.Debug("discarding partial stage for retry")
		err = os.RemoveAll(partialDir)
		if err != nil {
			return "", false, xerrors.Errorf("cannot discard partial stage: %w", err)
		}
	}

	err = os.Mkdir(partialDir, 0755)
	if err != nil {
		return "", false, xerrors.Errorf("cannot begin stage: %w", err)
	}

	err = work(partialDir)
	if err != nil {
		return "", false, err
	}

	err = os.Rename(partialDir, completeDir)
	if err != nil {
		return "", false, xerrors.Errorf("cannot commit stage: %w", err)
	}
	logger.Debug("stage committed")

	return completeDir, false, nil
}

func isDir(path string) (bool, error) {
	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stat.IsDir(), nil
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// ensureDirClean removes dir if it exists and creates it anew
func ensureDirClean(dir string) error {
	err := os.RemoveAll(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
