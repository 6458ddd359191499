package classify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Mock implementations for testing

type mockClassifier struct {
	mu      sync.Mutex
	calls   int
	script  chan Outcome
	ready   chan struct{} // Load blocks until closed, if set
	loadErr error
}

func newMockClassifier() *mockClassifier {
	return &mockClassifier{script: make(chan Outcome, 16)}
}

func (m *mockClassifier) Load(ctx context.Context) error {
	if m.ready != nil {
		select {
		case <-m.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.loadErr
}

func (m *mockClassifier) Classify(ctx context.Context) (Results, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	select {
	case o := <-m.script:
		return o.Results, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockClassifier) Close() error { return nil }

func (m *mockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockListener struct {
	mu       sync.Mutex
	calls    int
	out      chan Outcome
	listenCh chan struct{} // closed once Listen has been called
	ctx      context.Context
	startErr error
}

func newMockListener() *mockListener {
	return &mockListener{
		out:      make(chan Outcome, 16),
		listenCh: make(chan struct{}),
	}
}

func (m *mockListener) Load(ctx context.Context) error { return nil }

func (m *mockListener) Listen(ctx context.Context) (<-chan Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ctx = ctx
	if m.calls == 1 {
		close(m.listenCh)
	}
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.out, nil
}

func (m *mockListener) Close() error { return nil }

func (m *mockListener) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockListener) Context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func predictions(label string, confidence float64) Results {
	return Results{{Label: label, Confidence: confidence}, {Label: "other", Confidence: 1 - confidence}}
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startLoop(t *testing.T, l *Loop) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(cancelFn)
	return cancelFn, errCh
}

func TestNewRequiresExactlyOneSource(t *testing.T) {
	if _, err := New(Config{Logger: zerolog.Nop()}); !errors.Is(err, ErrNoClassifier) {
		t.Errorf("expected ErrNoClassifier with no source, got %v", err)
	}

	_, err := New(Config{
		Classifier: newMockClassifier(),
		Listener:   newMockListener(),
		Logger:     zerolog.Nop(),
	})
	if !errors.Is(err, ErrNoClassifier) {
		t.Errorf("expected ErrNoClassifier with both sources, got %v", err)
	}
}

func TestInitialState(t *testing.T) {
	l, err := New(Config{Classifier: newMockClassifier(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}

	snap := l.State().Snapshot()
	if snap.Label != LabelLoading {
		t.Errorf("expected label %q, got %q", LabelLoading, snap.Label)
	}
	if snap.ModelLoaded {
		t.Error("model should not be loaded initially")
	}
	if snap.Phase != PhaseLoading {
		t.Errorf("expected loading phase, got %s", snap.Phase)
	}
}

func TestOnResultUsesTopLabelVerbatim(t *testing.T) {
	l, _ := New(Config{Classifier: newMockClassifier(), Logger: zerolog.Nop()})
	l.OnModelReady()

	labels := []string{"cat", "  Spaced Label  ", "UPPER lower", "日本語のラベル", "a very long label that should not be truncated by anything at all"}
	for _, label := range labels {
		if !l.OnResult(nil, predictions(label, 0.7)) {
			t.Fatal("OnResult should keep going after success")
		}
		if got := l.State().Label(); got != label {
			t.Errorf("expected label %q, got %q", label, got)
		}
	}
}

func TestOnResultErrorSetsErrorLabelAndLogs(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Classifier: newMockClassifier(), Logger: zerolog.New(&buf)})
	l.OnModelReady()
	l.OnResult(nil, predictions("cat", 0.9))

	keepGoing := l.OnResult(errors.New("camera unplugged"), nil)
	if !keepGoing {
		t.Error("continue policy should keep going after an error")
	}

	snap := l.State().Snapshot()
	if snap.Label != LabelError {
		t.Errorf("expected label %q, got %q", LabelError, snap.Label)
	}
	if snap.Phase != PhaseErrored {
		t.Errorf("expected errored phase, got %s", snap.Phase)
	}
	if !strings.Contains(buf.String(), "camera unplugged") {
		t.Errorf("expected error to be logged, got %q", buf.String())
	}
}

func TestOnResultErrorWithHaltPolicy(t *testing.T) {
	l, _ := New(Config{Classifier: newMockClassifier(), OnError: HaltOnError, Logger: zerolog.Nop()})
	if l.OnResult(errors.New("boom"), nil) {
		t.Error("halt policy should stop after an error")
	}
}

func TestOnResultEmptyLeavesLabelUnchanged(t *testing.T) {
	l, _ := New(Config{Classifier: newMockClassifier(), Logger: zerolog.Nop()})
	l.OnModelReady()
	l.OnResult(nil, predictions("dog", 0.6))

	for _, empty := range []Results{nil, {}} {
		if !l.OnResult(nil, empty) {
			t.Error("empty results should not stop the loop")
		}
		if got := l.State().Label(); got != "dog" {
			t.Errorf("expected label to stay %q, got %q", "dog", got)
		}
	}
}

func TestOnResultShowConfidence(t *testing.T) {
	l, _ := New(Config{Classifier: newMockClassifier(), ShowConfidence: true, Logger: zerolog.Nop()})
	l.OnResult(nil, predictions("cat", 0.916))

	if got := l.State().Label(); got != "cat (92%)" {
		t.Errorf("expected %q, got %q", "cat (92%)", got)
	}

	l.SetShowConfidence(false)
	l.OnResult(nil, predictions("cat", 0.916))
	if got := l.State().Label(); got != "cat" {
		t.Errorf("expected %q, got %q", "cat", got)
	}
	if got := l.State().Snapshot().Confidence; got != 0.916 {
		t.Errorf("expected confidence to be kept, got %f", got)
	}
}

func TestModelLoadedFlipsOnce(t *testing.T) {
	l, _ := New(Config{Classifier: newMockClassifier(), Logger: zerolog.Nop()})

	l.OnModelReady()
	if !l.State().ModelLoaded() {
		t.Fatal("model should be loaded after ready")
	}
	l.OnResult(nil, predictions("cat", 0.9))
	l.OnResult(errors.New("boom"), nil)

	l.OnModelReady()
	if !l.State().ModelLoaded() {
		t.Error("model loaded should never revert")
	}
	if got := l.State().Label(); got != LabelError {
		t.Errorf("second ready signal should not touch the label, got %q", got)
	}
}

func TestRepollReadyThenFirstResult(t *testing.T) {
	clf := newMockClassifier()
	clf.ready = make(chan struct{})
	l, _ := New(Config{Classifier: clf, Logger: zerolog.Nop()})
	startLoop(t, l)

	time.Sleep(20 * time.Millisecond)
	if l.State().ModelLoaded() {
		t.Fatal("model should not be loaded before Load returns")
	}
	if clf.Calls() != 0 {
		t.Fatal("no request should be issued before the model is ready")
	}

	close(clf.ready)
	waitFor(t, "first request", func() bool { return clf.Calls() == 1 })

	if got := l.State().Label(); got != LabelRecognizing {
		t.Errorf("expected %q before any result, got %q", LabelRecognizing, got)
	}

	clf.script <- Outcome{Results: Results{{Label: "cat", Confidence: 0.92}}}
	waitFor(t, "cat label", func() bool { return l.State().Label() == "cat" })
}

func TestRepollIssuesOneRequestPerResult(t *testing.T) {
	clf := newMockClassifier()
	l, _ := New(Config{Classifier: clf, Logger: zerolog.Nop()})

	for _, label := range []string{"a", "b", "c", "d", "e"} {
		clf.script <- Outcome{Results: predictions(label, 0.8)}
	}

	cancel, done := startLoop(t, l)
	waitFor(t, "six requests", func() bool { return clf.Calls() == 6 })

	// The sixth request stays in flight; nothing else should be issued.
	time.Sleep(30 * time.Millisecond)
	if got := clf.Calls(); got != 6 {
		t.Errorf("expected exactly 6 classify calls, got %d", got)
	}
	if got := l.Requests(); got != 6 {
		t.Errorf("expected 6 counted requests, got %d", got)
	}
	if got := l.State().Label(); got != "e" {
		t.Errorf("expected last label %q, got %q", "e", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run should return nil on cancel, got %v", err)
	}
}

func TestRepollContinuesAfterError(t *testing.T) {
	clf := newMockClassifier()
	l, _ := New(Config{Classifier: clf, OnError: ContinueOnError, Logger: zerolog.Nop()})

	clf.script <- Outcome{Err: errors.New("frame not ready")}
	startLoop(t, l)

	waitFor(t, "request after error", func() bool { return clf.Calls() == 2 })
	if got := l.State().Label(); got != LabelError {
		t.Errorf("expected error label, got %q", got)
	}

	clf.script <- Outcome{Results: predictions("cat", 0.9)}
	waitFor(t, "recovery", func() bool { return l.State().Label() == "cat" })
}

func TestRepollHaltsAfterError(t *testing.T) {
	clf := newMockClassifier()
	l, _ := New(Config{Classifier: clf, OnError: HaltOnError, Logger: zerolog.Nop()})

	clf.script <- Outcome{Results: predictions("cat", 0.9)}
	clf.script <- Outcome{Err: errors.New("boom")}
	clf.script <- Outcome{Results: predictions("dog", 0.9)}

	_, done := startLoop(t, l)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil from halted loop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not halt")
	}

	if got := clf.Calls(); got != 2 {
		t.Errorf("expected 2 classify calls, got %d", got)
	}
	snap := l.State().Snapshot()
	if snap.Label != LabelError {
		t.Errorf("expected error label to stay, got %q", snap.Label)
	}
	if snap.Phase != PhaseHalted {
		t.Errorf("expected halted phase, got %s", snap.Phase)
	}
}

func TestRunReportsLoadFailure(t *testing.T) {
	clf := newMockClassifier()
	clf.loadErr = errors.New("404 model.onnx")
	l, _ := New(Config{Classifier: clf, Logger: zerolog.Nop()})

	err := l.Run(context.Background())
	if err == nil || !errors.Is(err, clf.loadErr) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
	if l.State().ModelLoaded() {
		t.Error("model should not be marked loaded")
	}
	if got := l.State().Label(); got != LabelLoading {
		t.Errorf("expected loading label, got %q", got)
	}
	if clf.Calls() != 0 {
		t.Error("no request should be issued without a model")
	}
}

func TestRunTwice(t *testing.T) {
	clf := newMockClassifier()
	l, _ := New(Config{Classifier: clf, Logger: zerolog.Nop()})
	startLoop(t, l)
	waitFor(t, "first request", func() bool { return clf.Calls() == 1 })

	if err := l.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestContinuousListensOnce(t *testing.T) {
	lst := newMockListener()
	l, _ := New(Config{Listener: lst, Logger: zerolog.Nop()})
	startLoop(t, l)

	<-lst.listenCh
	if got := l.State().Label(); got != LabelListening {
		t.Errorf("expected %q before any result, got %q", LabelListening, got)
	}

	for _, label := range []string{"clap", "snap", "whistle", "clap", "noise"} {
		lst.out <- Outcome{Results: predictions(label, 0.8)}
	}
	waitFor(t, "last label", func() bool { return l.State().Label() == "noise" })

	if got := lst.Calls(); got != 1 {
		t.Errorf("expected Listen to be called once, got %d", got)
	}
	if got := l.Requests(); got != 1 {
		t.Errorf("expected 1 counted request, got %d", got)
	}
}

func TestContinuousHaltsAfterError(t *testing.T) {
	lst := newMockListener()
	l, _ := New(Config{Listener: lst, OnError: HaltOnError, Logger: zerolog.Nop()})
	_, done := startLoop(t, l)

	<-lst.listenCh
	lst.out <- Outcome{Results: predictions("clap", 0.8)}
	lst.out <- Outcome{Err: errors.New("device lost")}
	lst.out <- Outcome{Results: predictions("snap", 0.8)}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not halt")
	}

	if got := l.State().Label(); got != LabelError {
		t.Errorf("expected error label to stay, got %q", got)
	}
	if lst.Context().Err() == nil {
		t.Error("expected listen context to be cancelled after halt")
	}
	if got := lst.Calls(); got != 1 {
		t.Errorf("expected no re-listen, got %d calls", got)
	}
}

func TestContinuousContinuesAfterError(t *testing.T) {
	lst := newMockListener()
	l, _ := New(Config{Listener: lst, OnError: ContinueOnError, Logger: zerolog.Nop()})
	startLoop(t, l)

	<-lst.listenCh
	lst.out <- Outcome{Err: errors.New("glitch")}
	lst.out <- Outcome{Results: predictions("snap", 0.8)}

	waitFor(t, "recovery", func() bool { return l.State().Label() == "snap" })
	if got := lst.Calls(); got != 1 {
		t.Errorf("expected Listen to be called once, got %d", got)
	}
}

func TestContinuousListenFailure(t *testing.T) {
	lst := newMockListener()
	lst.startErr = errors.New("no microphone")
	l, _ := New(Config{Listener: lst, Logger: zerolog.Nop()})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("listen failure should not fail Run, got %v", err)
	}
	snap := l.State().Snapshot()
	if snap.Label != LabelError || snap.Phase != PhaseHalted {
		t.Errorf("expected halted error state, got %+v", snap)
	}
}

func TestClassificationErrorUnwraps(t *testing.T) {
	cause := errors.New("inner")
	err := error(&ClassificationError{Err: cause})

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Error("expected errors.As to match")
	}
}

func TestPhaseText(t *testing.T) {
	for phase, name := range phaseNames {
		text, _ := phase.MarshalText()
		if string(text) != name {
			t.Errorf("expected %s, got %s", name, text)
		}
		var back Phase
		if err := back.UnmarshalText(text); err != nil || back != phase {
			t.Errorf("round trip of %s failed: %v", name, err)
		}
	}
}

func TestDefaultPolicyPerVariant(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected ErrorPolicy
	}{
		{"classifier default", Config{Classifier: newMockClassifier()}, ContinueOnError},
		{"listener default", Config{Listener: newMockListener()}, HaltOnError},
		{"classifier explicit halt", Config{Classifier: newMockClassifier(), OnError: HaltOnError}, HaltOnError},
		{"listener explicit continue", Config{Listener: newMockListener(), OnError: ContinueOnError}, ContinueOnError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = zerolog.Nop()
			l, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if l.onError != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, l.onError)
			}
		})
	}
}

func TestContinuousHaltsByDefault(t *testing.T) {
	lst := newMockListener()
	l, _ := New(Config{Listener: lst, Logger: zerolog.Nop()})
	_, done := startLoop(t, l)

	<-lst.listenCh
	lst.out <- Outcome{Err: errors.New("device lost")}
	lst.out <- Outcome{Results: predictions("snap", 0.8)}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not halt")
	}
	if got := l.State().Label(); got != LabelError {
		t.Errorf("expected error label to stay, got %q", got)
	}
}

func TestChanged(t *testing.T) {
	base := Snapshot{Label: "cat", ModelLoaded: true, Phase: PhaseResultReceived, Confidence: 0.9}

	tests := []struct {
		name     string
		next     Snapshot
		expected bool
	}{
		{"identical", base, false},
		{"confidence only", Snapshot{Label: "cat", ModelLoaded: true, Phase: PhaseResultReceived, Confidence: 0.5}, false},
		{"next cycle", Snapshot{Label: "cat", ModelLoaded: true, Phase: PhaseClassifying, Confidence: 0.9}, false},
		{"label", Snapshot{Label: "dog", ModelLoaded: true, Phase: PhaseResultReceived}, true},
		{"halted", Snapshot{Label: "cat", ModelLoaded: true, Phase: PhaseHalted}, true},
		{"not loaded", Snapshot{Label: "cat", Phase: PhaseResultReceived}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Changed(base, tt.next); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
