package popopt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInterrupted is returned at a stage checkpoint once an interrupt has been acknowledged
var ErrInterrupted = errors.New("build interrupted")

// MetadataFormatErr is used when the source metadata listing lacks an expected key
type MetadataFormatErr struct {
	Key string
}

func (e MetadataFormatErr) Error() string {
	return fmt.Sprintf("failed to find \"%s\" key in source metadata", e.Key)
}

// PackageMismatchErr is used when the metadata service answers for a different source package
type PackageMismatchErr struct {
	Requested string
	Found     string
}

func (e PackageMismatchErr) Error() string {
	return fmt.Sprintf("requested source \"%s\" does not match source \"%s\"", e.Requested, e.Found)
}

// SourceNotFoundErr is used when the source control file is missing after a fetch
type SourceNotFoundErr struct {
	Path string
}

func (e SourceNotFoundErr) Error() string {
	return fmt.Sprintf("failed to find source control file \"%s\"", e.Path)
}

// StageInProgressErr is used when a stage's partial directory exists and retry was not requested.
// The stage is either being worked on by another invocation or a prior attempt failed.
type StageInProgressErr struct {
	Path string
}

func (e StageInProgressErr) Error() string {
	return fmt.Sprintf("\"%s\" already exists, build is in progress or already failed", e.Path)
}

// StageIncompleteErr is used when a committed stage lacks the output it is expected to contain
type StageIncompleteErr struct {
	Path string
}

func (e StageIncompleteErr) Error() string {
	return fmt.Sprintf("stage is complete but \"%s\" is missing", e.Path)
}

// ArtifactMissingErr is used when a tool reported success without producing its artifact
type ArtifactMissingErr struct {
	Path string
}

func (e ArtifactMissingErr) Error() string {
	return fmt.Sprintf("expected artifact \"%s\" was not produced", e.Path)
}

// PatchFailedErr is used when applying the patch at Index (zero-based) failed.
// Later patches are never attempted.
type PatchFailedErr struct {
	Index int
	Path  string
	Err   error
}

func (e PatchFailedErr) Error() string {
	return fmt.Sprintf("patch %d (%s) failed: %v", e.Index, e.Path, e.Err)
}

func (e PatchFailedErr) Unwrap() error {
	return e.Err
}

// CommandFailedErr is used when an external tool exits with a non-zero status
type CommandFailedErr struct {
	Command    []string
	ExitStatus int
}

func (e CommandFailedErr) Error() string {
	return fmt.Sprintf("%s exited with status %d", strings.Join(e.Command, " "), e.ExitStatus)
}

// WorkerPanicErr is used when an architecture build worker panicked
type WorkerPanicErr struct {
	Value interface{}
}

func (e WorkerPanicErr) Error() string {
	return fmt.Sprintf("build worker panicked: %v", e.Value)
}
