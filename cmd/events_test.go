package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/margooey/lapsusctl/internal/db"
)

func TestMergeEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	changes := []db.LivenessChange{
		{Running: false, Source: db.SourceProbe, Timestamp: base.Add(3 * time.Minute)},
		{Running: true, Source: db.SourceProbe, Timestamp: base.Add(1 * time.Minute)},
	}
	controls := []db.ControlEvent{
		{Action: "stop", Backend: "direct", Result: db.ResultOK, Timestamp: base.Add(2 * time.Minute)},
		{Action: "start", Backend: "direct", Result: db.ResultOK, Timestamp: base},
	}

	tests := []struct {
		name  string
		kind  string
		limit int
		want  []string
	}{
		{name: "all newest first", kind: "all", limit: 10, want: []string{"stopped", "stop", "running", "start"}},
		{name: "limit applies after merge", kind: "all", limit: 2, want: []string{"stopped", "stop"}},
		{name: "liveness only", kind: "liveness", limit: 10, want: []string{"stopped", "running"}},
		{name: "control only", kind: "control", limit: 10, want: []string{"stop", "start"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := mergeEvents(changes, controls, tt.kind, tt.limit)
			var got []string
			for _, r := range rows {
				got = append(got, r.Event)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("mergeEvents() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []eventRow{
		{When: now.Add(-2 * time.Hour), Event: "start", Backend: "launchd", Result: "failed", Details: "Load failed: 5"},
	}

	var buf bytes.Buffer
	renderEvents(&buf, rows, now)

	out := buf.String()
	for _, want := range []string{"2 hours ago", "launchd", "failed", "Load failed: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderEvents() missing %q in:\n%s", want, out)
		}
	}
}
