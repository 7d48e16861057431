package popopt

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := ExecRunner{}.Run(&Command{
		Name:   "sh",
		Args:   []string{"-c", `echo "$POPOPT_TEST"; echo oops >&2`},
		Env:    []string{"POPOPT_TEST=hello"},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())

	err = ExecRunner{}.Run(&Command{Name: "sh", Args: []string{"-c", "exit 3"}, Stdout: &stdout, Stderr: &stderr})
	var cmdErr CommandFailedErr
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitStatus)
	assert.Equal(t, "sh -c exit 3 exited with status 3", err.Error())

	err = ExecRunner{}.Run(&Command{Name: "popopt-does-not-exist"})
	require.Error(t, err)
	assert.False(t, errors.As(err, &cmdErr))
}

type logRecorder struct {
	NoopReporter

	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) PackageBuildLog(pkg *PackageSpec, arch string, isErr bool, buf []byte) {
	stream := "out"
	if isErr {
		stream = "err"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, pkg.Name+"/"+arch+"/"+stream+": "+string(buf))
}

func TestReporterStream(t *testing.T) {
	var (
		rec = &logRecorder{}
		pkg = &PackageSpec{Name: "hello"}
	)
	err := ExecRunner{}.Run(&Command{
		Name:   "sh",
		Args:   []string{"-c", "echo building; echo failing >&2"},
		Stdout: &reporterStream{R: rec, P: pkg, Arch: "amd64"},
		Stderr: &reporterStream{R: rec, P: pkg, Arch: "amd64", IsErr: true},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello/amd64/out: building\n", "hello/amd64/err: failing\n"}, rec.lines)

	n, err := (&reporterStream{}).Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
