package popopt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkspace(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, WorkspaceFile), []byte(content), 0644))
	return root
}

func TestLoadWorkspace(t *testing.T) {
	root := writeWorkspace(t, `distribution: jammy
architectures: [amd64]
buildDir: /srv/build
sbuild:
  mirror: http://mirror.example/ubuntu/
`)

	act, err := LoadWorkspace(root)
	require.NoError(t, err)

	expected := Workspace{
		Distribution:        "jammy",
		VendorTag:           "popopt",
		Architectures:       []string{"amd64"},
		PrimaryArchitecture: "amd64",
		MicroarchDir:        filepath.Join(root, "arch", "x86_64"),
		PackageDir:          filepath.Join(root, "pkg"),
		BuildDir:            "/srv/build",
		PoolDir:             filepath.Join(root, "pool"),
		Sbuild: SbuildConfig{
			BuildRoot:        "/var/lib/sbuild/build",
			ChrootBuildRoot:  "/build",
			ChrootSuffix:     "popopt",
			Mirror:           "http://mirror.example/ubuntu/",
			ChangelogMessage: "Pop!_OS Optimizations",
		},
		Origin: root,
	}
	if diff := cmp.Diff(expected, act); diff != "" {
		t.Errorf("LoadWorkspace() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "jammy-amd64-popopt", act.ChrootName("amd64"))
	assert.Equal(t, "/srv/build/jammy/x86-64-v3/hello", act.PackageWorkDir(v3, &PackageSpec{Name: "hello"}))
	assert.Equal(t, filepath.Join(root, "pool", "jammy", "x86-64-v3"), act.PackagePoolDir(v3))
}

func TestLoadWorkspaceEnvironment(t *testing.T) {
	root := writeWorkspace(t, "distribution: focal\n")
	t.Setenv(EnvvarBuildDir, "/tmp/popopt-build")
	t.Setenv(EnvvarPoolDir, "relative-pool")

	act, err := LoadWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/popopt-build", act.BuildDir)
	assert.Equal(t, filepath.Join(root, "relative-pool"), act.PoolDir)
	assert.Equal(t, []string{"amd64", "i386"}, act.Architectures)
}

func TestLoadWorkspaceErrors(t *testing.T) {
	tests := []struct {
		Name    string
		Content string
		Err     string
	}{
		{Name: "no distribution", Content: "architectures: [amd64]\n", Err: "workspace has no distribution"},
		{Name: "duplicate architecture", Content: "distribution: jammy\narchitectures: [amd64, amd64]\n", Err: "architecture \"amd64\" is listed twice"},
		{Name: "foreign primary", Content: "distribution: jammy\narchitectures: [arm64]\n", Err: "primary architecture \"amd64\" is not one of the workspace architectures [arm64]"},
		{Name: "invalid yaml", Content: "distribution: [\n", Err: "cannot parse workspace file"},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			_, err := LoadWorkspace(writeWorkspace(t, test.Content))
			assert.ErrorContains(t, err, test.Err)
		})
	}

	_, err := LoadWorkspace(t.TempDir())
	assert.ErrorContains(t, err, "cannot read workspace file")
}
