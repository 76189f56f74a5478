// Package archive infers package versions from downloaded archive filenames.
package archive

import (
	"fmt"
	"strings"
)

// Suffixes in priority order: the compound one first, so "pkg-1.0.tar.gz"
// loses ".tar.gz" rather than ".gz".
var suffixes = []string{".tar.gz", ".tgz", ".tar", ".zip"}

// UnrecognizedNameError means an archive filename did not follow the
// name-separator-version convention, so no version can be safely inferred.
type UnrecognizedNameError struct {
	Filename string
	Package  string
}

func (e *UnrecognizedNameError) Error() string {
	return fmt.Sprintf("archive %q does not start with package name %q, so the version cannot be inferred", e.Filename, e.Package)
}

// VersionFromFilename deduces the version of a downloaded archive from its
// filename given the package name it was fetched for. The known project
// name is stripped from the left, the archive suffix from the right, and
// what remains after the separator is the version.
func VersionFromFilename(filename, packageName string) (string, error) {
	if strings.HasSuffix(filename, ".whl") {
		return wheelVersion(filename, packageName)
	}

	stem := filename
	for _, suffix := range suffixes {
		if strings.HasSuffix(stem, suffix) {
			stem = stem[:len(stem)-len(suffix)]
			break
		}
	}

	if !strings.HasPrefix(stem, packageName+"-") {
		return "", &UnrecognizedNameError{Filename: filename, Package: packageName}
	}
	return stem[len(packageName)+1:], nil
}

// wheelVersion handles PEP 427 wheel names:
// {distribution}-{version}[-{build}]-{python}-{abi}-{platform}.whl,
// where the distribution escapes runs of illegal characters to "_".
func wheelVersion(filename, packageName string) (string, error) {
	stem := strings.TrimSuffix(filename, ".whl")
	parts := strings.Split(stem, "-")
	if len(parts) < 5 || !strings.EqualFold(escapeName(parts[0]), escapeName(packageName)) {
		return "", &UnrecognizedNameError{Filename: filename, Package: packageName}
	}
	return parts[1], nil
}

func escapeName(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(name)
}
