// Package classify drives a live classifier and keeps the label that render
// surfaces display.
//
// A Loop owns one DisplayState. It waits for the model to load, then keeps
// exactly one classification request in flight: a Classifier is asked again
// after every result (video), while a Listener is started once and pushes
// results on its own (audio).
package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Status labels shown before the first result and after a failure.
const (
	LabelLoading     = "Loading..."
	LabelRecognizing = "Recognizing..."
	LabelListening   = "Listening..."
	LabelError       = "An error occurred"
)

var (
	ErrNoClassifier   = errors.New("classify: exactly one of Classifier or Listener must be set")
	ErrAlreadyRunning = errors.New("classify: loop already running")
)

// Prediction is one class the model scored.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// Results is ordered by descending confidence.
type Results []Prediction

// Top returns the highest-confidence prediction.
func (r Results) Top() (Prediction, bool) {
	if len(r) == 0 {
		return Prediction{}, false
	}
	return r[0], true
}

// Outcome is one delivery from a Listener.
type Outcome struct {
	Results Results
	Err     error
}

// Classifier yields exactly one outcome per Classify call.
type Classifier interface {
	// Load blocks until the model is ready to serve requests.
	Load(ctx context.Context) error
	Classify(ctx context.Context) (Results, error)
	Close() error
}

// Listener classifies continuously once Listen has been called. The channel
// is closed when ctx ends or the listener stops.
type Listener interface {
	Load(ctx context.Context) error
	Listen(ctx context.Context) (<-chan Outcome, error)
	Close() error
}

// ClassificationError wraps whatever the classifier reported for one cycle.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return "classification failed: " + e.Err.Error()
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// ErrorPolicy decides what happens to the loop after a failed cycle.
type ErrorPolicy int

const (
	// DefaultPolicy resolves to ContinueOnError for a Classifier and
	// HaltOnError for a Listener.
	DefaultPolicy ErrorPolicy = iota
	// ContinueOnError keeps classifying; the next success replaces the error label.
	ContinueOnError
	// HaltOnError stops issuing requests and leaves the error label up.
	HaltOnError
)

func (p ErrorPolicy) String() string {
	switch p {
	case DefaultPolicy:
		return "default"
	case ContinueOnError:
		return "continue"
	case HaltOnError:
		return "halt"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// FormatConfidence renders "label (92%)".
func FormatConfidence(p Prediction) string {
	return fmt.Sprintf("%s (%d%%)", p.Label, int(math.Round(p.Confidence*100)))
}
