package classify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Classifier Classifier  // asked again after every result
	Listener   Listener    // started once, delivers results on its own
	OnError    ErrorPolicy // zero value picks the per-variant default

	// ReadyLabel replaces the loading label once the model is up.
	// Defaults to LabelRecognizing for a Classifier and LabelListening for a Listener.
	ReadyLabel     string
	ShowConfidence bool
	Logger         zerolog.Logger
}

type Loop struct {
	id         string
	clf        Classifier
	lst        Listener
	onError    ErrorPolicy
	readyLabel string
	log        zerolog.Logger
	state      *DisplayState

	showConfidence atomic.Bool
	running        atomic.Bool
	requests       atomic.Int64
}

func New(cfg Config) (*Loop, error) {
	if (cfg.Classifier == nil) == (cfg.Listener == nil) {
		return nil, ErrNoClassifier
	}

	ready := cfg.ReadyLabel
	if ready == "" {
		ready = LabelRecognizing
		if cfg.Listener != nil {
			ready = LabelListening
		}
	}

	policy := cfg.OnError
	if policy == DefaultPolicy {
		policy = ContinueOnError
		if cfg.Listener != nil {
			policy = HaltOnError
		}
	}

	id := uuid.NewString()
	l := &Loop{
		id:         id,
		clf:        cfg.Classifier,
		lst:        cfg.Listener,
		onError:    policy,
		readyLabel: ready,
		log:        cfg.Logger.With().Str("component", "classify").Str("loop", id[:8]).Logger(),
		state:      NewDisplayState(),
	}
	l.showConfidence.Store(cfg.ShowConfidence)
	return l, nil
}

func (l *Loop) ID() string { return l.id }

// State is the display state render surfaces read from.
func (l *Loop) State() *DisplayState { return l.state }

// Requests counts classification requests issued so far.
func (l *Loop) Requests() int64 { return l.requests.Load() }

// SetShowConfidence takes effect from the next result.
func (l *Loop) SetShowConfidence(show bool) { l.showConfidence.Store(show) }

func (l *Loop) ShowConfidence() bool { return l.showConfidence.Load() }

// Run loads the model and classifies until ctx ends or the error policy
// halts the loop. Either way it returns nil; only a failed model load is
// reported as an error, and the state then stays in the loading phase.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	l.log.Info().Str("on_error", l.onError.String()).Msg("Loading model")
	if err := l.model().Load(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.log.Error().Err(err).Msg("Model failed to load")
		return fmt.Errorf("load model: %w", err)
	}

	l.OnModelReady()

	if l.clf != nil {
		return l.poll(ctx)
	}
	return l.listen(ctx)
}

// OnModelReady marks the model loaded and shows the ready label. It only
// has an effect the first time it is called.
func (l *Loop) OnModelReady() {
	if !l.state.markReady(l.readyLabel) {
		l.log.Warn().Msg("Model ready signalled twice, ignoring")
		return
	}
	l.log.Info().Str("label", l.readyLabel).Msg("Model ready")
}

// OnResult applies one classification outcome to the display state and
// reports whether the loop should keep classifying.
func (l *Loop) OnResult(err error, results Results) bool {
	if err != nil {
		var cerr *ClassificationError
		if !errors.As(err, &cerr) {
			cerr = &ClassificationError{Err: err}
		}
		l.log.Error().Err(cerr).Msg("Classification error")
		l.state.setError(LabelError)
		return l.onError == ContinueOnError
	}

	top, ok := results.Top()
	if !ok {
		// Nothing to show; keep the previous label.
		l.state.setPhase(PhaseResultReceived)
		return true
	}

	label := top.Label
	if l.showConfidence.Load() {
		label = FormatConfidence(top)
	}
	l.state.setResult(label, top.Confidence)
	l.log.Debug().Str("label", top.Label).Float64("confidence", top.Confidence).Msg("Result")
	return true
}

func (l *Loop) model() interface{ Load(context.Context) error } {
	if l.clf != nil {
		return l.clf
	}
	return l.lst
}

// requestClassification issues one request and blocks until it completes.
func (l *Loop) requestClassification(ctx context.Context) (Results, error) {
	l.requests.Add(1)
	l.state.setPhase(PhaseClassifying)
	return l.clf.Classify(ctx)
}

func (l *Loop) poll(ctx context.Context) error {
	for {
		results, err := l.requestClassification(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !l.OnResult(err, results) {
			l.halt()
			return nil
		}
	}
}

func (l *Loop) listen(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.requests.Add(1)
	l.state.setPhase(PhaseClassifying)
	outcomes, err := l.lst.Listen(listenCtx)
	if err != nil {
		l.OnResult(err, nil)
		l.halt()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case o, ok := <-outcomes:
			if !ok {
				l.log.Info().Msg("Listener stopped")
				return nil
			}
			if !l.OnResult(o.Err, o.Results) {
				l.halt()
				return nil
			}
		}
	}
}

func (l *Loop) halt() {
	l.state.setPhase(PhaseHalted)
	l.log.Warn().Msg("Classification halted after error")
}
