package popopt

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Command describes a single invocation of an external tool
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the environment of this process
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// Argv returns the command name followed by its arguments
func (c *Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

func (c *Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// CommandRunner runs external tools. Every tool the pipeline depends on
// (schroot, dpkg-source, patch, dch, sbuild, dpkg) is invoked through it.
//
// Implementations must translate a non-zero exit status into a CommandFailedErr.
type CommandRunner interface {
	Run(cmd *Command) error
}

// ExecRunner runs commands as child processes of this process
type ExecRunner struct{}

// Run starts the command and waits for it to finish
func (ExecRunner) Run(cmd *Command) error {
	log.WithField("command", cmd.String()).WithField("dir", cmd.Dir).Debug("running")

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}

	err := c.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return CommandFailedErr{Command: cmd.Argv(), ExitStatus: exitErr.ExitCode()}
	}
	return xerrors.Errorf("cannot run %s: %w", cmd.Name, err)
}

// reporterStream forwards tool output to the reporter
type reporterStream struct {
	R     Reporter
	P     *PackageSpec
	Arch  string
	IsErr bool
}

func (s *reporterStream) Write(buf []byte) (n int, err error) {
	if s.R != nil {
		s.R.PackageBuildLog(s.P, s.Arch, s.IsErr, buf)
	}
	return len(buf), nil
}
