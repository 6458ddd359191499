package classify

import (
	"fmt"
	"sync"
)

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseClassifying
	PhaseResultReceived
	PhaseErrored
	PhaseHalted
)

var phaseNames = map[Phase]string{
	PhaseLoading:        "loading",
	PhaseReady:          "ready",
	PhaseClassifying:    "classifying",
	PhaseResultReceived: "result_received",
	PhaseErrored:        "errored",
	PhaseHalted:         "halted",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Snapshot is a copy of the display state taken at one instant.
type Snapshot struct {
	Label       string  `json:"label"`
	ModelLoaded bool    `json:"model_loaded"`
	Phase       Phase   `json:"phase"`
	Confidence  float64 `json:"confidence"`
}

// Changed reports whether next differs from prev in a way a viewer would
// notice: the label, the loaded flag, or a phase change other than the
// classifying/result flip every cycle goes through.
func Changed(prev, next Snapshot) bool {
	if prev.Label != next.Label || prev.ModelLoaded != next.ModelLoaded {
		return true
	}
	if prev.Phase == next.Phase {
		return false
	}
	return !(cycling(prev.Phase) && cycling(next.Phase))
}

func cycling(p Phase) bool {
	return p == PhaseClassifying || p == PhaseResultReceived
}

// DisplayState is written by the loop goroutine and read by render ticks.
type DisplayState struct {
	mu          sync.RWMutex
	label       string
	modelLoaded bool
	phase       Phase
	confidence  float64
}

func NewDisplayState() *DisplayState {
	return &DisplayState{
		label: LabelLoading,
		phase: PhaseLoading,
	}
}

func (s *DisplayState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Label:       s.label,
		ModelLoaded: s.modelLoaded,
		Phase:       s.phase,
		Confidence:  s.confidence,
	}
}

func (s *DisplayState) Label() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}

func (s *DisplayState) ModelLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelLoaded
}

// markReady flips modelLoaded once. Later calls change nothing and return false.
func (s *DisplayState) markReady(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modelLoaded {
		return false
	}
	s.modelLoaded = true
	s.label = label
	s.phase = PhaseReady
	return true
}

func (s *DisplayState) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *DisplayState) setResult(label string, confidence float64) {
	s.mu.Lock()
	s.label = label
	s.confidence = confidence
	s.phase = PhaseResultReceived
	s.mu.Unlock()
}

func (s *DisplayState) setError(label string) {
	s.mu.Lock()
	s.label = label
	s.confidence = 0
	s.phase = PhaseErrored
	s.mu.Unlock()
}
