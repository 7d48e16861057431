package popopt

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// VersionComparer compares Debian package versions
type VersionComparer interface {
	// GreaterThan returns true if a sorts strictly after b
	GreaterThan(a, b string) (bool, error)
}

// DpkgComparer compares versions using "dpkg --compare-versions"
type DpkgComparer struct {
	Runner CommandRunner
}

// GreaterThan asks dpkg whether a > b. dpkg answers with its exit status.
func (c DpkgComparer) GreaterThan(a, b string) (bool, error) {
	err := c.Runner.Run(&Command{
		Name: "dpkg",
		Args: []string{"--compare-versions", a, "gt", b},
	})
	if err == nil {
		return true, nil
	}

	var cmdErr CommandFailedErr
	if errors.As(err, &cmdErr) {
		return false, nil
	}
	return false, err
}

// VersionSource determines which upstream version of a source package we build
type VersionSource struct {
	Runner   CommandRunner
	Comparer VersionComparer
	// Chroot is the schroot the metadata query runs in
	Chroot string
}

// Resolve queries the source metadata of pkgName and returns the highest version listed.
// The listing contains one entry per distribution pocket that carries the package.
func (vs *VersionSource) Resolve(pkgName, distribution string) (string, error) {
	var stdout bytes.Buffer
	err := vs.Runner.Run(&Command{
		Name: "schroot",
		Args: []string{
			"--chroot", vs.Chroot,
			"--directory", "/root",
			"--user", "root",
			"--",
			"apt-cache", "showsrc", "--only-source", pkgName,
		},
		Stdout: &stdout,
	})
	if err != nil {
		return "", xerrors.Errorf("cannot query source metadata for %s: %w", pkgName, err)
	}

	versions, err := parseSourceListing(stdout.String(), pkgName)
	if err != nil {
		return "", err
	}

	version, err := highestVersion(vs.Comparer, versions)
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"package":      pkgName,
		"distribution": distribution,
		"candidates":   strings.Join(versions, ", "),
		"version":      version,
	}).Debug("resolved source version")
	return version, nil
}

// parseSourceListing extracts the listed versions and checks that every entry is for pkgName
func parseSourceListing(listing, pkgName string) ([]string, error) {
	packages, err := sourceValues(listing, "Package")
	if err != nil {
		return nil, err
	}
	for _, p := range packages {
		if p != pkgName {
			return nil, PackageMismatchErr{Requested: pkgName, Found: p}
		}
	}

	return sourceValues(listing, "Version")
}

// sourceValues returns the values of all "<key>: <value>" lines
func sourceValues(listing, key string) ([]string, error) {
	var (
		res    []string
		prefix = key + ": "
	)
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, prefix) {
			res = append(res, line[len(prefix):])
		}
	}
	if len(res) == 0 {
		return nil, MetadataFormatErr{Key: key}
	}
	return res, nil
}

// highestVersion reduces versions to their maximum. A candidate replaces the current
// maximum only if it is strictly greater, so among equal versions the first one listed wins.
func highestVersion(cmp VersionComparer, versions []string) (string, error) {
	if len(versions) == 0 {
		return "", MetadataFormatErr{Key: "Version"}
	}

	res := versions[0]
	for _, v := range versions[1:] {
		gt, err := cmp.GreaterThan(v, res)
		if err != nil {
			return "", xerrors.Errorf("cannot compare versions %s and %s: %w", v, res, err)
		}
		if gt {
			res = v
		}
	}
	return res, nil
}

// SyntheticVersion is the version of our rebuild of upstream for an optimisation tier.
// Appending the vendor tag makes it sort after upstream while staying stable across runs.
func SyntheticVersion(upstream, vendorTag string, level int) string {
	return upstream + vendorTag + strconv.Itoa(level)
}

// stripEpoch removes the "<epoch>:" prefix which Debian omits from file names
func stripEpoch(version string) string {
	if i := strings.Index(version, ":"); i >= 0 {
		return version[i+1:]
	}
	return version
}

// dscFileName returns the name of the source control file for a package version
func dscFileName(pkgName, version string) string {
	return pkgName + "_" + stripEpoch(version) + ".dsc"
}
