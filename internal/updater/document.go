package updater

import (
	"errors"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrLocalDocument wraps every failure to read the local README file.
var ErrLocalDocument = errors.New("cannot read local document")

// LoadDocument reads the local README file and returns its content as UTF-8.
// A UTF-8 or UTF-16 byte order mark selects the encoding and is stripped;
// without one the file is taken as UTF-8.
func LoadDocument(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrLocalDocument)
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLocalDocument, err)
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrLocalDocument, path, err)
	}
	return string(decoded), nil
}

// NormalizeBio returns text in Unicode normalization form C. Whitespace is
// kept as given.
func NormalizeBio(text string) string {
	return norm.NFC.String(text)
}

// Diff returns a unified diff from the remote content to the local one, or
// "" when they are equal.
func Diff(remote, local, name string) string {
	if remote == local {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(remote),
		B:        difflib.SplitLines(local),
		FromFile: "remote/" + name,
		ToFile:   "local/" + name,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
