package ytdlp

import (
	"context"
	"strconv"
	"strings"
)

// Format is one video rendition from --list-formats.
type Format struct {
	ID         string `json:"id"`
	Resolution string `json:"resolution"`
	Ext        string `json:"format"`
}

// FormatList is the parsed listing plus the distinct quality labels.
type FormatList struct {
	Formats            []Format `json:"formats"`
	AvailableQualities []string `json:"available_qualities"`
}

// ListFormats runs --list-formats and parses the table.
func (s *Service) ListFormats(ctx context.Context, sourceURL string) (*FormatList, error) {
	out, err := s.withUserAgentFallback(ctx, sourceURL, s.cfg.FormatsTimeout, s.cfg.FormatsTimeout, "--list-formats", "--no-warnings")
	if err != nil {
		return nil, err
	}
	return ParseFormats(string(out)), nil
}

// ParseFormats reads the --list-formats table. Audio-only rows, storyboards
// and header lines are skipped.
func ParseFormats(output string) *FormatList {
	list := &FormatList{
		Formats:            []Format{},
		AvailableQualities: []string{},
	}
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" ||
			strings.Contains(line, "ID") ||
			strings.Contains(line, "─") ||
			strings.Contains(line, "Available formats") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		id, ext, resolution := parts[0], parts[1], parts[2]
		if resolution == "audio" || ext == "mhtml" || !strings.Contains(resolution, "x") {
			continue
		}

		_, h, _ := strings.Cut(resolution, "x")
		height, err := strconv.Atoi(h)
		if err != nil {
			continue
		}

		label := QualityLabel(height)
		list.Formats = append(list.Formats, Format{ID: id, Resolution: label, Ext: ext})
		if !seen[label] {
			seen[label] = true
			list.AvailableQualities = append(list.AvailableQualities, label)
		}
	}

	return list
}

// QualityLabel buckets a pixel height into the labels the UI offers.
func QualityLabel(height int) string {
	switch {
	case height >= 2160:
		return "4k"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	default:
		return "240p"
	}
}
