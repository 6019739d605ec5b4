package ui

import (
	"errors"
	"strings"
	"testing"

	"dspgen/internal/pipeline"
)

func TestApplyEventTracksUnits(t *testing.T) {
	files := []string{"a.dspir", "b.dspir"}
	m := NewProgressModel("compiling", files, nil).(*progressModel)

	steps := []struct {
		ev     pipeline.Event
		a, b   string
		failed int
	}{
		{pipeline.Event{File: "a.dspir", Stage: pipeline.StageLower, Status: pipeline.StatusWorking}, "lowering", "queued", 0},
		{pipeline.Event{File: "a.dspir", Stage: pipeline.StageLower, Status: pipeline.StatusDone}, "lowering", "queued", 0},
		{pipeline.Event{File: "b.dspir", Stage: pipeline.StageLoad, Status: pipeline.StatusError, Err: errors.New("boom")}, "lowering", "error", 1},
		{pipeline.Event{File: "b.dspir", Stage: pipeline.StageValidate, Status: pipeline.StatusWorking}, "lowering", "error", 1},
		{pipeline.Event{File: "a.dspir", Stage: pipeline.StageWrite, Status: pipeline.StatusDone}, "done", "error", 1},
		{pipeline.Event{File: "c.dspir", Stage: pipeline.StageWrite, Status: pipeline.StatusDone}, "done", "error", 1},
	}
	for i, st := range steps {
		m.applyEvent(st.ev)
		if m.items[0].status != st.a || m.items[1].status != st.b || m.failed != st.failed {
			t.Fatalf("step %d: statuses %q/%q failed %d", i, m.items[0].status, m.items[1].status, m.failed)
		}
	}
	if got := m.percent(); got != 1.0 {
		t.Fatalf("percent = %v, want 1", got)
	}
	if !strings.Contains(m.View(), "(2/2), 1 failed") {
		t.Fatalf("header misses the counts:\n%s", m.View())
	}
}

func TestPercentFollowsStages(t *testing.T) {
	m := NewProgressModel("compiling", []string{"a", "b"}, nil).(*progressModel)
	m.applyEvent(pipeline.Event{File: "a", Stage: pipeline.StageCodegen, Status: pipeline.StatusWorking})
	if got, want := m.percent(), 0.35; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("percent = %v, want %v", got, want)
	}
}

func TestEventsDrainToDone(t *testing.T) {
	ch := make(chan pipeline.Event, 1)
	m := NewProgressModel("compiling", []string{"a"}, ch).(*progressModel)
	ch <- pipeline.Event{File: "a", Stage: pipeline.StageLoad, Status: pipeline.StatusWorking}
	close(ch)
	listen := m.listenForEvent()
	if _, ok := listen().(eventMsg); !ok {
		t.Fatal("first message is not an event")
	}
	if _, ok := listen().(doneMsg); !ok {
		t.Fatal("closed channel does not finish the model")
	}
	m.Update(doneMsg{})
	if !m.done || !strings.Contains(m.View(), "done: compiling") {
		t.Fatalf("model not done:\n%s", m.View())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"build/very/long/path.dspir", 12, "build/..."},
		{"abcdef", 3, "abc"},
		{"any", 0, "any"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.width); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
		}
	}
}
