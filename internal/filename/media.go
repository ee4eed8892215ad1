package filename

import (
	"path/filepath"
	"strings"
)

// MediaExtensions are the output types the downloader produces.
var MediaExtensions = []string{".mp4", ".mp3", ".webm", ".m4a"}

// IsMedia reports whether name carries one of MediaExtensions.
func IsMedia(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range MediaExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsPlain reports whether name is a bare file name with no directory part.
func IsPlain(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
