package observ

import (
	"strings"
	"testing"
	"time"
)

func TestTimerPhases(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("load")
	time.Sleep(time.Millisecond)
	tm.End(idx, "2 traces")

	idx2 := tm.Begin("replay")
	tm.End(idx2, "")

	report := tm.Report()
	if len(report.Phases) != 2 {
		t.Fatalf("Phases = %d, want 2", len(report.Phases))
	}
	if report.Phases[0].Name != "load" || report.Phases[0].Note != "2 traces" {
		t.Fatalf("phase[0] = %+v", report.Phases[0])
	}
	if report.Phases[0].DurationMS <= 0 {
		t.Fatalf("load duration not recorded: %v", report.Phases[0].DurationMS)
	}
	if report.TotalMS < report.Phases[0].DurationMS {
		t.Fatalf("total %v below phase %v", report.TotalMS, report.Phases[0].DurationMS)
	}

	sum := tm.Summary()
	if !strings.Contains(sum, "load") || !strings.Contains(sum, "total") {
		t.Fatalf("Summary missing sections:\n%s", sum)
	}
	if !strings.Contains(sum, "// 2 traces") {
		t.Fatalf("Summary missing note:\n%s", sum)
	}
}

func TestTimerEndOutOfRange(t *testing.T) {
	tm := NewTimer()
	tm.End(-1, "disabled")
	tm.End(3, "never began")
	if got := tm.Report(); len(got.Phases) != 0 {
		t.Fatalf("Report = %+v, want empty", got)
	}
}
