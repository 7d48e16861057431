package popopt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchFiles(t *testing.T) {
	pkg := &PackageSpec{
		Name:    "hello",
		Patches: []string{"patches/02.patch", "/abs/01.patch", "../shared/03.patch"},
		Origin:  "/ws/pkg/hello.yaml",
	}

	act, err := pkg.PatchFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/ws/pkg/patches/02.patch", "/abs/01.patch", "/ws/shared/03.patch"}, act)
}

func TestLoadAllPackageSpecs(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b-hello.yaml": "name: hello\npatches:\n  - patches/hello.patch\n",
		"a-zlib.yml":   "name: zlib\n",
		"README.md":    "not a spec",
	}
	for fn, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fn), []byte(content), 0644))
	}

	act, err := LoadAllPackageSpecs(dir)
	require.NoError(t, err)
	require.Len(t, act, 2)
	assert.Equal(t, "zlib", act[0].Name)
	assert.Equal(t, "hello", act[1].Name)
	assert.Equal(t, []string{"patches/hello.patch"}, act[1].Patches)
	assert.Equal(t, filepath.Join(dir, "b-hello.yaml"), act[1].Origin)
}

func TestLoadAllPackageSpecsDuplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: hello\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: hello\n"), 0644))

	_, err := LoadAllPackageSpecs(dir)
	assert.ErrorContains(t, err, "defined in both")
}

func TestSelectPackages(t *testing.T) {
	pkgs := []*PackageSpec{{Name: "hello"}, {Name: "zlib"}, {Name: "curl"}}

	all, err := SelectPackages(pkgs, nil)
	require.NoError(t, err)
	assert.Equal(t, pkgs, all)

	sel, err := SelectPackages(pkgs, []string{"curl", "hello"})
	require.NoError(t, err)
	assert.Equal(t, []*PackageSpec{pkgs[2], pkgs[0]}, sel)

	_, err = SelectPackages(pkgs, []string{"curl", "vim", "emacs"})
	assert.EqualError(t, err, "unknown packages: vim, emacs")
}
