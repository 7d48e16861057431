package popopt

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// rankComparer orders versions by a fixed rank table
type rankComparer map[string]int

func (r rankComparer) GreaterThan(a, b string) (bool, error) {
	ra, ok := r[a]
	if !ok {
		return false, errors.New("unknown version " + a)
	}
	rb, ok := r[b]
	if !ok {
		return false, errors.New("unknown version " + b)
	}
	return ra > rb, nil
}

type commandFunc func(cmd *Command) error

func (f commandFunc) Run(cmd *Command) error { return f(cmd) }

func TestHighestVersion(t *testing.T) {
	// 1.0-2ubuntu1.01 and 1.0-2ubuntu1.1 are equal as far as dpkg is concerned
	ranks := rankComparer{
		"0.9-1":           1,
		"1.0-1":           2,
		"1.0-2ubuntu1":    3,
		"1.0-2ubuntu1.1":  4,
		"1.0-2ubuntu1.01": 4,
	}

	tests := []struct {
		Name     string
		Versions []string
		Expected string
		Err      bool
	}{
		{Name: "single", Versions: []string{"1.0-1"}, Expected: "1.0-1"},
		{Name: "pockets", Versions: []string{"1.0-1", "1.0-2ubuntu1", "0.9-1"}, Expected: "1.0-2ubuntu1"},
		{Name: "highest last", Versions: []string{"0.9-1", "1.0-1", "1.0-2ubuntu1.1"}, Expected: "1.0-2ubuntu1.1"},
		{Name: "first of equals wins", Versions: []string{"1.0-2ubuntu1.01", "1.0-2ubuntu1.1"}, Expected: "1.0-2ubuntu1.01"},
		{Name: "first of equals wins reversed", Versions: []string{"1.0-2ubuntu1.1", "1.0-2ubuntu1.01"}, Expected: "1.0-2ubuntu1.1"},
		{Name: "empty", Err: true},
		{Name: "comparison fails", Versions: []string{"1.0-1", "garbage"}, Err: true},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			act, err := highestVersion(ranks, test.Versions)
			if test.Err {
				if err == nil {
					t.Fatalf("expected error, got version %s", act)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if act != test.Expected {
				t.Errorf("highestVersion() = %s, want %s", act, test.Expected)
			}
		})
	}
}

func TestParseSourceListing(t *testing.T) {
	type Expectation struct {
		Versions []string
		Err      error
	}

	tests := []struct {
		Name        string
		Listing     string
		Expectation Expectation
	}{
		{
			Name: "two pockets",
			Listing: "Package: hello\nBinary: hello\nVersion: 2.10-2\nFiles:\n abc 123 hello_2.10-2.dsc\n\n" +
				"Package: hello\nBinary: hello\nVersion: 2.10-2ubuntu1\n",
			Expectation: Expectation{Versions: []string{"2.10-2", "2.10-2ubuntu1"}},
		},
		{
			Name:        "crlf",
			Listing:     "Package: hello\r\nVersion: 2.10-2\r\n",
			Expectation: Expectation{Versions: []string{"2.10-2"}},
		},
		{
			Name:        "indented keys are ignored",
			Listing:     "Package: hello\n Version: 1.0\nVersion: 2.10-2\n",
			Expectation: Expectation{Versions: []string{"2.10-2"}},
		},
		{
			Name:        "no package key",
			Listing:     "Version: 2.10-2\n",
			Expectation: Expectation{Err: MetadataFormatErr{Key: "Package"}},
		},
		{
			Name:        "no version key",
			Listing:     "Package: hello\nBinary: hello\n",
			Expectation: Expectation{Err: MetadataFormatErr{Key: "Version"}},
		},
		{
			Name:        "empty",
			Expectation: Expectation{Err: MetadataFormatErr{Key: "Package"}},
		},
		{
			Name:        "other package",
			Listing:     "Package: hello\nVersion: 2.10-2\n\nPackage: hello-traditional\nVersion: 2.10-3\n",
			Expectation: Expectation{Err: PackageMismatchErr{Requested: "hello", Found: "hello-traditional"}},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			var act Expectation
			act.Versions, act.Err = parseSourceListing(test.Listing, "hello")

			if diff := cmp.Diff(test.Expectation, act); diff != "" {
				t.Errorf("parseSourceListing() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVersionSourceResolve(t *testing.T) {
	var calls []string
	runner := commandFunc(func(cmd *Command) error {
		calls = append(calls, cmd.String())
		if cmd.Name == "dpkg" {
			// "1.0-2ubuntu1" is the only version greater than anything
			if cmd.Args[1] == "1.0-2ubuntu1" {
				return nil
			}
			return CommandFailedErr{Command: cmd.Argv(), ExitStatus: 1}
		}
		_, err := cmd.Stdout.Write([]byte("Package: foo\nVersion: 1.0-1\n\nPackage: foo\nVersion: 1.0-2ubuntu1\n\nPackage: foo\nVersion: 0.9-1\n"))
		return err
	})

	vs := &VersionSource{Runner: runner, Comparer: DpkgComparer{Runner: runner}, Chroot: "jammy-amd64-popopt"}
	act, err := vs.Resolve("foo", "jammy")
	if err != nil {
		t.Fatal(err)
	}
	if act != "1.0-2ubuntu1" {
		t.Errorf("Resolve() = %s, want 1.0-2ubuntu1", act)
	}

	expected := []string{
		"schroot --chroot jammy-amd64-popopt --directory /root --user root -- apt-cache showsrc --only-source foo",
		"dpkg --compare-versions 1.0-2ubuntu1 gt 1.0-1",
		"dpkg --compare-versions 0.9-1 gt 1.0-2ubuntu1",
	}
	if diff := cmp.Diff(expected, calls); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestDpkgComparerPropagatesRunnerErrors(t *testing.T) {
	broken := errors.New("dpkg not installed")
	c := DpkgComparer{Runner: commandFunc(func(cmd *Command) error { return broken })}

	_, err := c.GreaterThan("1", "0")
	if !errors.Is(err, broken) {
		t.Errorf("GreaterThan() error = %v, want %v", err, broken)
	}
}

func TestSyntheticVersion(t *testing.T) {
	tests := []struct {
		Upstream string
		Level    int
		Version  string
		DSC      string
	}{
		{Upstream: "2.10-2ubuntu1", Level: 3, Version: "2.10-2ubuntu1popopt3", DSC: "hello_2.10-2ubuntu1popopt3.dsc"},
		{Upstream: "1:1.2.11.dfsg-2ubuntu9", Level: 2, Version: "1:1.2.11.dfsg-2ubuntu9popopt2", DSC: "hello_1.2.11.dfsg-2ubuntu9popopt2.dsc"},
	}

	for _, test := range tests {
		t.Run(test.Version, func(t *testing.T) {
			v := SyntheticVersion(test.Upstream, "popopt", test.Level)
			if v != test.Version {
				t.Errorf("SyntheticVersion() = %s, want %s", v, test.Version)
			}
			if dsc := dscFileName("hello", v); dsc != test.DSC {
				t.Errorf("dscFileName() = %s, want %s", dsc, test.DSC)
			}
		})
	}
}
