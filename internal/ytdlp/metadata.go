package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength bounds the description kept from --dump-json.
const MaxDescriptionLength = 1000

// Metadata is the subset of yt-dlp's info JSON used for summaries.
type Metadata struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	UploadDate  string  `json:"upload_date"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	WebpageURL  string  `json:"webpage_url"`
	Extractor   string  `json:"extractor"`
}

// YtdlpOutput represents the JSON output from yt-dlp --dump-json
type YtdlpOutput struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	UploadDate  string  `json:"upload_date"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	Thumbnails  []Thumb `json:"thumbnails"`
	WebpageURL  string  `json:"webpage_url"`
	Extractor   string  `json:"extractor"`
}

// Thumb represents a thumbnail entry
type Thumb struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ToMetadata converts YtdlpOutput to Metadata, filling gaps the way the
// prompt expects them.
func (o *YtdlpOutput) ToMetadata() *Metadata {
	m := &Metadata{
		ID:          o.ID,
		Title:       o.Title,
		Uploader:    o.Uploader,
		Duration:    o.Duration,
		ViewCount:   o.ViewCount,
		UploadDate:  o.UploadDate,
		Description: truncateRunes(o.Description, MaxDescriptionLength),
		Thumbnail:   o.Thumbnail,
		WebpageURL:  o.WebpageURL,
		Extractor:   o.Extractor,
	}

	if m.Uploader == "" {
		m.Uploader = o.Channel
	}
	if m.Uploader == "" {
		m.Uploader = "Unknown"
	}
	if m.UploadDate == "" {
		m.UploadDate = "Unknown"
	}
	if m.Thumbnail == "" && len(o.Thumbnails) > 0 {
		m.Thumbnail = o.Thumbnails[len(o.Thumbnails)-1].URL
	}

	return m
}

// GetTitle returns the video title via --get-title.
func (s *Service) GetTitle(ctx context.Context, sourceURL string) (string, error) {
	out, err := s.withUserAgentFallback(ctx, sourceURL, s.cfg.TitleTimeout, s.cfg.TitleTimeout, "--get-title", "--no-warnings")
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(string(out))
	if title == "" {
		return "", &DownloadError{URL: sourceURL, Message: "empty title", Err: ErrMetadataParse}
	}
	// playlists print one title per entry
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	return title, nil
}

// GetMetadata retrieves metadata for a URL without downloading
func (s *Service) GetMetadata(ctx context.Context, sourceURL string) (*Metadata, error) {
	out, err := s.withUserAgentFallback(ctx, sourceURL, s.cfg.MetadataTimeout, s.cfg.MetadataFallbackTimeout,
		"--dump-json", "--no-playlist", "--no-warnings")
	if err != nil {
		return nil, err
	}

	return ParseMetadata(out)
}

// ParseMetadata decodes one --dump-json document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var o YtdlpOutput
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, &DownloadError{Message: "failed to parse metadata", Err: fmt.Errorf("%w: %v", ErrMetadataParse, err)}
	}
	return o.ToMetadata(), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
