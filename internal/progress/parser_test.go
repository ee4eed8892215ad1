package progress

import (
	"fmt"
	"math"
	"testing"
)

func TestParse_DownloadLine(t *testing.T) {
	s := Parse("[download]  45.2% of  123.4MiB at  2.3MiB/s ETA 00:30")

	if !s.HasProgress || s.Progress != 45.2 {
		t.Errorf("progress = %v (%v), want 45.2", s.Progress, s.HasProgress)
	}
	if s.Speed != "2.3MiB/s" {
		t.Errorf("speed = %q", s.Speed)
	}
	if s.ETA != "00:30" {
		t.Errorf("eta = %q", s.ETA)
	}
	if s.Phase != PhaseNone || s.FilePath != "" {
		t.Errorf("unexpected phase/path: %v %q", s.Phase, s.FilePath)
	}
}

func TestParse_EveryPercentage(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 10
		line := fmt.Sprintf("[download] %.1f%% of 10.00MiB", p)
		s := Parse(line)
		if !s.HasProgress || s.Progress != p {
			t.Fatalf("Parse(%q) = %v, want %v", line, s.Progress, p)
		}
	}
}

func TestParse_IntegerPercentage(t *testing.T) {
	s := Parse("[download] 100% of 5.00MiB in 00:02")
	if !s.HasProgress || s.Progress != 100 {
		t.Errorf("progress = %v", s.Progress)
	}
}

func TestParse_SizeRatio(t *testing.T) {
	tests := []struct {
		line string
		want float64
		has  bool
	}{
		{"[download] 512MiB of 1.0GiB at 2.00MiB/s ETA 04:16", 50, true},
		{"[download] 2KiB of 8KiB at 1.00KiB/s ETA 00:06", 25, true},
		{"[download] 1.0GiB of 1.0GiB at 3.00MiB/s ETA 00:00", 99.9, true},
		{"[download] 10MiB of 0B at 1.00MiB/s ETA 00:00", 0, false},
		{"[download] 10MiB of junk at 1.00MiB/s ETA 00:00", 0, false},
		{"[download] of 10MiB", 0, false},
		{"[download] InfMiB of 10MiB at 2.3MiB/s ETA 00:30", 0, true},
		{"[download] 1MiB of NaNMiB at 2.3MiB/s ETA 00:30", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s := Parse(tt.line)
			if s.HasProgress != tt.has {
				t.Fatalf("HasProgress = %v, want %v", s.HasProgress, tt.has)
			}
			if tt.has && math.Abs(s.Progress-tt.want) > 1e-9 {
				t.Errorf("progress = %v, want %v", s.Progress, tt.want)
			}
		})
	}
}

func TestParse_PercentWinsOverRatio(t *testing.T) {
	s := Parse("[download]  10.0% of 512MiB of 1.0GiB at 1.00MiB/s")
	if s.Progress != 10.0 {
		t.Errorf("progress = %v, percentage must take precedence", s.Progress)
	}
}

func TestParse_Announcements(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		path  string
		phase Phase
	}{
		{
			name:  "merge",
			line:  `[Merger] Merging formats into "/tmp/job_1_x/My Clip.mp4"`,
			path:  "/tmp/job_1_x/My Clip.mp4",
			phase: PhaseProcessing,
		},
		{
			name:  "extract audio",
			line:  "[ExtractAudio] Destination: /tmp/job_1_x/Song.mp3  ",
			path:  "/tmp/job_1_x/Song.mp3",
			phase: PhaseProcessing,
		},
		{
			name:  "destination of raw stream is not final",
			line:  "[download] Destination: /tmp/job_1_x/Song.webm",
			path:  "",
			phase: PhaseNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse(tt.line)
			if s.FilePath != tt.path {
				t.Errorf("FilePath = %q, want %q", s.FilePath, tt.path)
			}
			if s.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", s.Phase, tt.phase)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	lines := []string{
		"",
		"[youtube] abc123: Downloading webpage",
		"[download] abc% of ???",
		"ETA unknown",
		"[download] 999999999999999999999999999999999999999999% of 1MiB",
	}
	for _, line := range lines {
		if s := Parse(line); s.HasProgress {
			t.Errorf("Parse(%q) produced progress %v", line, s.Progress)
		}
	}
}

func TestParse_SpeedAndETAOnly(t *testing.T) {
	s := Parse("[download] Unknown size at 512.3KiB/s ETA 01:02:03")
	if s.HasProgress {
		t.Error("unexpected progress")
	}
	if s.Speed != "512.3KiB/s" {
		t.Errorf("speed = %q", s.Speed)
	}
	if s.ETA != "01:02:03" {
		t.Errorf("eta = %q", s.ETA)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.0GiB", 1073741824},
		{"512MiB", 536870912},
		{"2KiB", 2048},
		{"100B", 100},
		{"123", 123},
		{"~1.5KiB", 1536},
		{"", 0},
		{"abc", 0},
		{"MiB", 0},
		{"-5MiB", 0},
		{"NaNMiB", 0},
		{"InfMiB", 0},
		{"+InfGiB", 0},
		{"1e30GiB", 0},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.in); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
