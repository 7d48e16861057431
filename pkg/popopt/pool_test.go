package popopt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	var (
		buildDir = t.TempDir()
		poolDir  = filepath.Join(t.TempDir(), "pool")
	)
	var artifacts []string
	for _, fn := range []string{"hello_1.0_amd64.deb", "hello-doc_1.0_all.deb"} {
		fn = filepath.Join(buildDir, fn)
		require.NoError(t, os.WriteFile(fn, []byte(fn), 0644))
		artifacts = append(artifacts, fn)
	}

	linked, err := Aggregate("hello", artifacts, poolDir)
	require.NoError(t, err)
	assert.Equal(t, 2, linked)

	for _, fn := range artifacts {
		src, err := os.Stat(fn)
		require.NoError(t, err)
		dst, err := os.Stat(filepath.Join(poolDir, "hello", filepath.Base(fn)))
		require.NoError(t, err)
		assert.True(t, os.SameFile(src, dst), "%s was copied instead of linked", fn)
	}

	// aggregating again leaves existing names alone
	linked, err = Aggregate("hello", artifacts, poolDir)
	require.NoError(t, err)
	assert.Equal(t, 0, linked)

	entries, err := os.ReadDir(filepath.Join(poolDir, "hello"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAggregateKeepsExistingFiles(t *testing.T) {
	var (
		buildDir = t.TempDir()
		poolDir  = t.TempDir()
		src      = filepath.Join(buildDir, "hello_1.0_amd64.deb")
		dst      = filepath.Join(poolDir, "hello", "hello_1.0_amd64.deb")
	)
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	linked, err := Aggregate("hello", []string{src}, poolDir)
	require.NoError(t, err)
	assert.Equal(t, 0, linked)

	fc, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(fc))
}

func TestAggregateMissingArtifact(t *testing.T) {
	_, err := Aggregate("hello", []string{filepath.Join(t.TempDir(), "missing.deb")}, t.TempDir())
	assert.Error(t, err)
}

func TestCommittedArtifacts(t *testing.T) {
	ws := &Workspace{
		Distribution:  "jammy",
		Architectures: []string{"amd64", "i386"},
		BuildDir:      t.TempDir(),
	}
	pkg := &PackageSpec{Name: "hello"}
	workDir := ws.PackageWorkDir(v3, pkg)

	files := map[string]string{
		"2.10-2/sbuild-amd64/hello_2.10-2popopt3_amd64.deb":                 "",
		"2.10-2/sbuild-i386.partial/hello_2.10-2popopt3_i386.deb":           "",
		"2.10-2ubuntu1/sbuild-amd64/hello_2.10-2ubuntu1popopt3_amd64.deb":   "",
		"2.10-2ubuntu1/sbuild-arm64/hello_2.10-2ubuntu1popopt3_arm64.deb":   "",
		"2.10-2ubuntu1/source/hello_2.10-2ubuntu1popopt3.dsc":               "",
		"2.10-2ubuntu1/sbuild-amd64/hello_2.10-2ubuntu1popopt3_amd64.build": "",
	}
	for fn, content := range files {
		fn = filepath.Join(workDir, fn)
		require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
		require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	}

	act, err := CommittedArtifacts(ws, v3, pkg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(workDir, "2.10-2", "sbuild-amd64", "hello_2.10-2popopt3_amd64.deb"),
		filepath.Join(workDir, "2.10-2ubuntu1", "sbuild-amd64", "hello_2.10-2ubuntu1popopt3_amd64.deb"),
		filepath.Join(workDir, "2.10-2ubuntu1", "sbuild-arm64", "hello_2.10-2ubuntu1popopt3_arm64.deb"),
	}, act)

	none, err := CommittedArtifacts(ws, v3, &PackageSpec{Name: "never-built"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
