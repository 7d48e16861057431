package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pop-os/popopt/pkg/popopt"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		Name        string
		Content     string
		Expectation *Setup
	}{
		{
			Name:        "empty",
			Expectation: &Setup{},
		},
		{
			Name: "single",
			Expectation: &Setup{
				Workspace: popopt.Workspace{
					Distribution:  "jammy",
					Architectures: []string{"amd64"},
				},
				Packages: []Package{
					{
						Spec: popopt.PackageSpec{
							Name:    "hello",
							Patches: []string{"patches/hello.patch"},
						},
					},
				},
				Microarchs: []popopt.Microarch{
					{Name: "x86-64-v3", Level: 3, Features: []string{"avx2"}},
				},
				Files: map[string]string{"pkg/patches/hello.patch": "- a\n+ b\n"},
			},
			Content: `workspace:
  distribution: jammy
  architectures: [amd64]
packages:
  - spec:
      name: hello
      patches:
        - patches/hello.patch
microarchs:
  - name: x86-64-v3
    level: 3
    features: [avx2]
files:
  pkg/patches/hello.patch: |
    - a
    + b
`,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			act, err := LoadFromYAML(bytes.NewBufferString(test.Content))
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(test.Expectation, act); diff != "" {
				t.Errorf("LoadFromYAML() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMaterialize(t *testing.T) {
	setup := Setup{
		Workspace: popopt.Workspace{
			Distribution: "jammy",
			Sbuild:       popopt.SbuildConfig{BuildRoot: "sbuild"},
		},
		Packages: []Package{
			{Spec: popopt.PackageSpec{Name: "hello", Patches: []string{"patches/hello.patch"}}},
			{File: "00-zlib.yml", Spec: popopt.PackageSpec{Name: "zlib"}},
		},
		Microarchs: []popopt.Microarch{
			{Name: "x86-64-v2", Level: 2},
			{Name: "x86-64-v3", Level: 3},
		},
		Files: map[string]string{
			"pkg/patches/hello.patch": "- original\n+ patched\n",
		},
	}

	root := t.TempDir()
	require.NoError(t, setup.MaterializeIn(root))

	ws, err := popopt.LoadWorkspace(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "sbuild"), ws.Sbuild.BuildRoot)

	pkgs, err := ws.Packages()
	require.NoError(t, err)
	var names []string
	for _, p := range pkgs {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"zlib", "hello"}, names); diff != "" {
		t.Errorf("package order mismatch (-want +got):\n%s", diff)
	}

	patches, err := pkgs[1].PatchFiles()
	require.NoError(t, err)
	require.Len(t, patches, 1)
	_, err = os.Stat(patches[0])
	require.NoError(t, err)

	profiles, err := ws.Microarchs()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "x86-64-v3", profiles[1].Name)
}
