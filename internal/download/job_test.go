package download

import (
	"errors"
	"testing"
	"time"

	"github.com/tubelens/backend/internal/progress"
)

func TestJob_ApplyScenarioLine(t *testing.T) {
	j := NewJob("id", "u", "video", "720p", "/tmp/x", time.Now())
	if err := j.MarkDownloading(time.Now()); err != nil {
		t.Fatal(err)
	}

	sig := progress.Parse("[download]  45.2% of  123.4MiB at  2.3MiB/s ETA 00:30")
	if err := j.Apply(sig, time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if j.State != StateDownloading || j.Progress != 45.2 || j.Speed != "2.3MiB/s" || j.ETA != "00:30" {
		t.Errorf("unexpected job after apply: state=%s progress=%v speed=%q eta=%q", j.State, j.Progress, j.Speed, j.ETA)
	}
}

func TestJob_ProgressMonotonicAndClamped(t *testing.T) {
	j := NewJob("id", "u", "video", "", "/tmp/x", time.Now())
	j.MarkDownloading(time.Now())

	steps := []struct {
		in   float64
		want float64
	}{
		{10, 10},
		{5, 10},
		{60.5, 60.5},
		{100, MaxActiveProgress},
		{0, MaxActiveProgress},
	}
	for _, s := range steps {
		j.Apply(progress.Signal{HasProgress: true, Progress: s.in}, time.Now())
		if j.Progress != s.want {
			t.Errorf("after %v: progress = %v, want %v", s.in, j.Progress, s.want)
		}
	}
}

func TestJob_PhaseChange(t *testing.T) {
	j := NewJob("id", "u", "audio", "", "/tmp/x", time.Now())
	j.MarkDownloading(time.Now())
	j.Apply(progress.Signal{HasProgress: true, Progress: 40}, time.Now())

	j.Apply(progress.Parse("[ExtractAudio] Destination: /tmp/x/song.mp3"), time.Now())
	if j.State != StateProcessing || j.Progress != progress.ProcessingProgress {
		t.Fatalf("state=%s progress=%v, want processing/95", j.State, j.Progress)
	}

	// later percentages only raise progress and do not leave processing
	j.Apply(progress.Signal{HasProgress: true, Progress: 50}, time.Now())
	j.Apply(progress.Signal{HasProgress: true, Progress: 97}, time.Now())
	if j.State != StateProcessing || j.Progress != 97 {
		t.Errorf("state=%s progress=%v, want processing/97", j.State, j.Progress)
	}
}

func TestJob_TerminalNeverRegresses(t *testing.T) {
	now := time.Now()

	done := NewJob("a", "u", "video", "", "/tmp/x", now)
	done.MarkDownloading(now)
	if err := done.Complete("/tmp/x/a.mp4", "a.mp4", now); err != nil {
		t.Fatal(err)
	}

	failed := NewJob("b", "u", "video", "", "/tmp/x", now)
	failed.MarkDownloading(now)
	failed.Apply(progress.Signal{HasProgress: true, Progress: 30}, now)
	if err := failed.Fail("yt-dlp failed with exit code 1", now); err != nil {
		t.Fatal(err)
	}

	for _, j := range []*Job{&done, &failed} {
		before := *j
		mutations := map[string]error{
			"apply":       j.Apply(progress.Signal{HasProgress: true, Progress: 50, Phase: progress.PhaseProcessing}, now),
			"downloading": j.MarkDownloading(now),
			"complete":    j.Complete("/other", "other", now),
			"fail":        j.Fail("late", now),
		}
		for name, err := range mutations {
			if !errors.Is(err, ErrJobTerminal) {
				t.Errorf("%s on %s job: err = %v, want ErrJobTerminal", name, before.State, err)
			}
		}
		if _, err := j.Nudge(5, 90, now); !errors.Is(err, ErrJobTerminal) {
			t.Errorf("nudge on %s job: err = %v", before.State, err)
		}
		if j.State != before.State || j.Progress != before.Progress || j.FinalFilePath != before.FinalFilePath || j.ErrorMessage != before.ErrorMessage {
			t.Errorf("terminal job mutated: before %+v after %+v", before, *j)
		}
	}

	if done.Progress != 100 {
		t.Errorf("done progress = %v, want 100", done.Progress)
	}
	if failed.Progress != 30 || failed.ErrorMessage == "" {
		t.Errorf("failed job = %+v", failed)
	}
}

func TestJob_Nudge(t *testing.T) {
	now := time.Now()

	t.Run("waits while started", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		keep, err := j.Nudge(5, 90, now)
		if err != nil || !keep || j.Progress != 0 {
			t.Errorf("keep=%v err=%v progress=%v", keep, err, j.Progress)
		}
	})

	t.Run("moves off zero once", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)

		keep, err := j.Nudge(5, 90, now)
		if err != nil || keep || j.Progress != 5 {
			t.Fatalf("first nudge: keep=%v err=%v progress=%v", keep, err, j.Progress)
		}

		keep, err = j.Nudge(5, 90, now)
		if err != nil || keep {
			t.Errorf("second nudge: keep=%v err=%v, want stop", keep, err)
		}
		if j.Progress != 5 {
			t.Errorf("progress = %v, want 5", j.Progress)
		}
	})

	t.Run("respects ceiling", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)

		j.Nudge(5, 3, now)
		if j.Progress != 3 {
			t.Errorf("progress = %v, want 3", j.Progress)
		}
	})

	t.Run("stops after real progress", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)
		j.Nudge(5, 90, now)
		j.Apply(progress.Signal{HasProgress: true, Progress: 12.5}, now)

		keep, err := j.Nudge(5, 90, now)
		if err != nil || keep {
			t.Errorf("keep=%v err=%v, want stop", keep, err)
		}
		if j.Progress != 12.5 {
			t.Errorf("progress = %v, want 12.5", j.Progress)
		}
	})

	t.Run("zero percent still gets nudged", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)
		j.Apply(progress.Signal{HasProgress: true, Progress: 0}, now)

		j.Nudge(5, 90, now)
		if j.Progress != 5 {
			t.Errorf("progress = %v, want 5", j.Progress)
		}
	})

	t.Run("leaves real progress alone", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)
		j.Apply(progress.Signal{HasProgress: true, Progress: 2}, now)

		keep, err := j.Nudge(5, 90, now)
		if err != nil || keep || j.Progress != 2 {
			t.Errorf("keep=%v err=%v progress=%v", keep, err, j.Progress)
		}
	})

	t.Run("stops in processing", func(t *testing.T) {
		j := NewJob("id", "u", "video", "", "", now)
		j.MarkDownloading(now)
		j.Apply(progress.Signal{Phase: progress.PhaseProcessing}, now)

		keep, err := j.Nudge(5, 90, now)
		if err != nil || keep || j.Progress != progress.ProcessingProgress {
			t.Errorf("keep=%v err=%v progress=%v", keep, err, j.Progress)
		}
	})
}
