// Package filename derives display-safe file names for Content-Disposition
// headers and the downloads directory.
package filename

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxLength = 100
	fallback  = "video"
)

var (
	unsafeChars      = regexp.MustCompile(`[^\w\s\-.]`)
	nonASCII         = regexp.MustCompile(`[^\x00-\x7F]+`)
	repeatedUnderbar = regexp.MustCompile(`_{2,}`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// Sanitize turns an arbitrary title into an ASCII name that is safe in a
// header and on disk. Accents are folded to their base letters, anything
// else outside [A-Za-z0-9_ .-] becomes an underscore.
func Sanitize(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	folded = unsafeChars.ReplaceAllString(folded, "_")
	folded = nonASCII.ReplaceAllString(folded, "_")
	folded = repeatedUnderbar.ReplaceAllString(folded, "_")
	folded = whitespaceRun.ReplaceAllString(folded, " ")

	if len(folded) > maxLength {
		folded = folded[:maxLength]
	}

	folded = strings.Trim(folded, " _")
	if folded == "" {
		return fallback
	}
	return folded
}

// SanitizeBase sanitizes the stem of a file name and keeps its extension,
// so "Café ☕.mp3" becomes "Cafe.mp3".
func SanitizeBase(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	return Sanitize(strings.TrimSuffix(base, ext)) + ext
}
