package popopt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDescribePackage(t *testing.T) {
	ws := &Workspace{
		Distribution:  "jammy",
		Architectures: []string{"amd64", "i386"},
		BuildDir:      t.TempDir(),
	}
	pkg := &PackageSpec{Name: "hello"}
	workDir := ws.PackageWorkDir(v3, pkg)
	for _, dir := range []string{"2.10-2/source", "2.10-2/sbuild-amd64", "2.10-2/sbuild-i386.partial", "2.10-2/sbuild-armhf.partial"} {
		require.NoError(t, os.MkdirAll(filepath.Join(workDir, dir), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "stray-file"), nil, 0644))

	act, err := DescribePackage(ws, v3, pkg)
	require.NoError(t, err)

	dir := filepath.Join(workDir, "2.10-2")
	expected := []VersionStatus{
		{
			Version: "2.10-2",
			Dir:     dir,
			Stages: []StageStatus{
				{Name: "source", State: StageComplete, Path: filepath.Join(dir, "source")},
				{Name: "sbuild-amd64", State: StageComplete, Path: filepath.Join(dir, "sbuild-amd64")},
				{Name: "sbuild-i386", State: StagePartial, Path: filepath.Join(dir, "sbuild-i386.partial")},
				{Name: "sbuild-armhf", State: StagePartial, Path: filepath.Join(dir, "sbuild-armhf.partial")},
			},
		},
	}
	if diff := cmp.Diff(expected, act); diff != "" {
		t.Errorf("DescribePackage() mismatch (-want +got):\n%s", diff)
	}

	none, err := DescribePackage(ws, v3, &PackageSpec{Name: "zlib"})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestStageStatusJSON(t *testing.T) {
	fc, err := json.Marshal(StageStatus{Name: "source", State: StagePartial, Path: "/build/source.partial"})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"source","state":"partial","path":"/build/source.partial"}`, string(fc))
}
