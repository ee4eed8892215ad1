// Package progress turns single lines of yt-dlp output into progress signals.
//
// Each recognizer looks at the line independently and never fails; a line
// it does not understand simply contributes nothing. The download runner
// decides how signals change job state.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Phase is a coarse stage announced by the downloader.
type Phase int

const (
	PhaseNone Phase = iota
	// PhaseProcessing starts when yt-dlp merges streams or extracts audio.
	PhaseProcessing
)

// ProcessingProgress is the placeholder shown while post-processing runs,
// since yt-dlp reports no percentage for it.
const ProcessingProgress = 95.0

// Signal is everything one line said. Zero values mean "not present".
type Signal struct {
	HasProgress bool
	Progress    float64
	Speed       string
	ETA         string
	FilePath    string
	Phase       Phase
}

// Empty reports whether the line carried no signal at all.
func (s Signal) Empty() bool {
	return !s.HasProgress && s.Speed == "" && s.ETA == "" && s.FilePath == "" && s.Phase == PhaseNone
}

type matcher func(line string, s *Signal)

// matchers run in order; sizeRatio relies on percent having run first.
var matchers = []matcher{
	mergeAnnouncement,
	extractAudioAnnouncement,
	percent,
	speed,
	eta,
	sizeRatio,
}

// Parse extracts all signals from one output line.
func Parse(line string) Signal {
	var s Signal
	for _, m := range matchers {
		m(line, &s)
	}
	return s
}

var (
	mergeRe        = regexp.MustCompile(`\[Merger\] Merging formats into "([^"]+)"`)
	extractAudioRe = regexp.MustCompile(`\[ExtractAudio\] Destination: (.+)`)
	percentRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	speedRe        = regexp.MustCompile(`(\d+(?:\.\d+)?[KM]iB/s)`)
	etaRe          = regexp.MustCompile(`ETA (\d+:\d+(?::\d+)?)`)
)

func mergeAnnouncement(line string, s *Signal) {
	if m := mergeRe.FindStringSubmatch(line); m != nil {
		s.FilePath = m[1]
		s.Phase = PhaseProcessing
		return
	}
	if strings.Contains(line, "[Merger] Merging into") {
		s.Phase = PhaseProcessing
	}
}

func extractAudioAnnouncement(line string, s *Signal) {
	if m := extractAudioRe.FindStringSubmatch(line); m != nil {
		s.FilePath = strings.TrimSpace(m[1])
		s.Phase = PhaseProcessing
	}
}

func percent(line string, s *Signal) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil || p < 0 || p > 100 {
		return
	}
	s.HasProgress = true
	s.Progress = p
}

func speed(line string, s *Signal) {
	if m := speedRe.FindStringSubmatch(line); m != nil {
		s.Speed = m[1]
	}
}

func eta(line string, s *Signal) {
	if m := etaRe.FindStringSubmatch(line); m != nil {
		s.ETA = m[1]
	}
}

// sizeRatio handles "<done> of <total> at <rate> ETA <eta>" lines that carry
// no percentage, deriving progress from the two sizes.
func sizeRatio(line string, s *Signal) {
	if s.HasProgress || percentRe.MatchString(line) {
		return
	}

	fields := strings.Fields(line)
	hasAt := false
	for _, f := range fields {
		if f == "at" {
			hasAt = true
			break
		}
	}
	if !hasAt {
		return
	}

	for i, f := range fields {
		if f != "of" || i == 0 || i+1 >= len(fields) {
			continue
		}
		done := ParseSize(fields[i-1])
		total := ParseSize(fields[i+1])
		if total <= 0 {
			return
		}
		p := float64(done) / float64(total) * 100
		if p < 0 {
			p = 0
		}
		if p > 99.9 {
			p = 99.9
		}
		s.HasProgress = true
		s.Progress = p
		return
	}
}

var units = []struct {
	suffix string
	factor float64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"B", 1},
}

// ParseSize converts sizes such as "123.4MiB" or "~2.00GiB" to bytes.
// Only the binary units yt-dlp prints are known. Anything unparseable,
// non-finite or too large for int64 is 0.
func ParseSize(size string) int64 {
	size = strings.TrimPrefix(strings.TrimSpace(size), "~")

	factor := 1.0
	for _, u := range units {
		if strings.HasSuffix(size, u.suffix) {
			size = strings.TrimSuffix(size, u.suffix)
			factor = u.factor
			break
		}
	}

	n, err := strconv.ParseFloat(size, 64)
	if err != nil || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	if n*factor >= math.MaxInt64 {
		return 0
	}
	return int64(n * factor)
}
