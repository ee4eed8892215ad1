package ytdlp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrURLNotSupported indicates no extractor handles the URL
	ErrURLNotSupported = errors.New("url not supported")

	// ErrVideoUnavailable indicates the video is not available
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrVideoPrivate indicates the video is private
	ErrVideoPrivate = errors.New("video is private")

	// ErrAgeRestricted indicates the content is age-restricted
	ErrAgeRestricted = errors.New("content is age-restricted")

	// ErrGeoBlocked indicates the content is not available in this region
	ErrGeoBlocked = errors.New("content is geo-blocked")

	// ErrNetworkError indicates a network-related error
	ErrNetworkError = errors.New("network error")

	// ErrYtdlpNotFound indicates yt-dlp is not installed
	ErrYtdlpNotFound = errors.New("yt-dlp not found in PATH")

	// ErrDownloadFailed is the catch-all for failures without a known cause
	ErrDownloadFailed = errors.New("download failed")

	// ErrTimeout indicates a query exceeded its deadline
	ErrTimeout = errors.New("yt-dlp timed out")

	// ErrMetadataParse indicates --dump-json produced something that is not JSON
	ErrMetadataParse = errors.New("unparseable metadata")
)

// DownloadError wraps an error with additional context
type DownloadError struct {
	URL     string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

var categories = []struct {
	patterns []string
	message  string
	err      error
}{
	{[]string{"video unavailable", "this video is unavailable"}, "video unavailable", ErrVideoUnavailable},
	{[]string{"private video", "is private"}, "video is private", ErrVideoPrivate},
	{[]string{"age-restricted", "sign in to confirm your age"}, "content is age-restricted", ErrAgeRestricted},
	{[]string{"not available in your country", "geo restricted", "geo-restricted"}, "content is geo-blocked", ErrGeoBlocked},
	{[]string{"unsupported url", "no suitable extractor"}, "url not supported", ErrURLNotSupported},
	{[]string{"unable to download", "connection", "network", "timed out"}, "network error", ErrNetworkError},
}

// Categorize maps yt-dlp diagnostic output to a DownloadError with one of
// the sentinel errors above.
func Categorize(sourceURL string, output string) *DownloadError {
	lower := strings.ToLower(output)

	for _, c := range categories {
		for _, p := range c.patterns {
			if strings.Contains(lower, p) {
				return &DownloadError{URL: sourceURL, Message: c.message, Err: c.err}
			}
		}
	}

	detail := strings.TrimSpace(lastErrorLine(output))
	if detail == "" {
		return &DownloadError{URL: sourceURL, Message: "download failed", Err: ErrDownloadFailed}
	}
	return &DownloadError{URL: sourceURL, Message: "download failed", Err: fmt.Errorf("%w: %s", ErrDownloadFailed, detail)}
}

// Reason returns a short human readable cause for a failed run, or "" when
// the output does not identify one.
func Reason(output string) string {
	de := Categorize("", output)
	if errors.Is(de.Err, ErrDownloadFailed) {
		return strings.TrimPrefix(lastErrorLine(output), "ERROR: ")
	}
	return de.Message
}

func lastErrorLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "ERROR:") {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
