package ytdlp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Output formats accepted by a download request.
const (
	FormatVideo = "video"
	FormatAudio = "audio"
)

// OutputTemplate names files after the video title inside the job directory.
const OutputTemplate = "%(title)s.%(ext)s"

// MergeContainer is the container video streams are merged into.
const MergeContainer = "mp4"

// DownloadOptions describes one download invocation.
type DownloadOptions struct {
	URL       string
	Format    string
	Quality   string
	OutputDir string
	UserAgent string
}

var videoHeights = map[string]int{
	"4k":    2160,
	"2160p": 2160,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

// audioQualities maps a requested bitrate to yt-dlp's VBR scale (0 best, 9 worst).
var audioQualities = map[string]string{
	"320": "0",
	"256": "5",
	"128": "9",
}

// DownloadArgs builds the yt-dlp argument list for a download. Anything
// other than FormatAudio is treated as video.
func DownloadArgs(opts DownloadOptions) []string {
	args := []string{
		opts.URL,
		"-o", filepath.Join(opts.OutputDir, OutputTemplate),
		"--newline",
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}

	if IsAudio(opts.Format) {
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", AudioQuality(opts.Quality))
		return append(args, "--progress")
	}

	args = append(args, "-f", VideoSelector(opts.Quality), "--progress")
	return append(args, "--merge-output-format", MergeContainer)
}

// IsAudio reports whether format requests audio extraction.
func IsAudio(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), FormatAudio)
}

// VideoSelector returns the -f expression for a quality ceiling.
func VideoSelector(quality string) string {
	height, ok := videoHeights[strings.ToLower(strings.TrimSpace(quality))]
	if !ok {
		return "bestvideo+bestaudio/best"
	}
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/best", height, height)
}

// AudioQuality returns the --audio-quality value for a bitrate such as
// "320", "256k" or "best".
func AudioQuality(quality string) string {
	q := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "k")
	if v, ok := audioQualities[q]; ok {
		return v
	}
	return "0"
}
