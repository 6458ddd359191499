package surface

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petems/live-classify/internal/classify"
	"github.com/rs/zerolog"
)

type fakeState struct {
	mu   sync.Mutex
	snap classify.Snapshot
	n    int
}

func (f *fakeState) Snapshot() classify.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.snap
}

func (f *fakeState) set(label string) {
	f.mu.Lock()
	f.snap.Label = label
	f.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *recorder) Render(snap classify.Snapshot) {
	r.mu.Lock()
	r.labels = append(r.labels, snap.Label)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.labels)
}

func TestRunRendersEverySurfaceEachTick(t *testing.T) {
	state := &fakeState{snap: classify.Snapshot{Label: "cat"}}
	a, b := &recorder{}, &recorder{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	Run(ctx, state, 100, a, b)

	if a.count() < 5 {
		t.Errorf("expected several ticks, got %d", a.count())
	}
	if a.count() != b.count() {
		t.Errorf("expected both surfaces to render on every tick, got %d and %d", a.count(), b.count())
	}
	for _, l := range a.labels {
		if l != "cat" {
			t.Fatalf("expected label cat, got %s", l)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	state := &fakeState{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, state, 60)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOnChange(t *testing.T) {
	r := &recorder{}
	s := OnChange(r)

	s.Render(classify.Snapshot{Label: "Loading..."})
	s.Render(classify.Snapshot{Label: "Loading..."})
	s.Render(classify.Snapshot{Label: "cat", Phase: classify.PhaseResultReceived})
	s.Render(classify.Snapshot{Label: "cat", Phase: classify.PhaseResultReceived})
	s.Render(classify.Snapshot{Label: "cat", Phase: classify.PhaseClassifying})
	s.Render(classify.Snapshot{Label: "cat", Phase: classify.PhaseHalted})

	if got := strings.Join(r.labels, ","); got != "Loading...,cat,cat" {
		t.Errorf("unexpected renders: %s", got)
	}
}

func TestLogWritesLabelChanges(t *testing.T) {
	var buf bytes.Buffer
	s := Log(zerolog.New(&buf))

	state := &fakeState{}
	for _, label := range []string{"Listening...", "Listening...", "clap", "clap", "snap"} {
		state.set(label)
		s.Render(state.Snapshot())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], `"label":"snap"`) {
		t.Errorf("expected last line to carry snap, got %s", lines[2])
	}
}
