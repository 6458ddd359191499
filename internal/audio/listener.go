package audio

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/config"
	"github.com/petems/live-classify/internal/model"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

var (
	ErrNotLoaded = errors.New("sound model not loaded")
	ErrClosed    = errors.New("listener closed")
)

// Listener keeps classifying microphone audio after a single Listen call.
// Predictions below the probability threshold never leave the listener.
type Listener struct {
	capture  Capture
	fetcher  *model.Fetcher
	modelURL string
	cfg      config.AudioConfig
	log      zerolog.Logger

	mu      sync.Mutex
	net     *model.Net
	closed  bool
	stop    chan struct{}
	running chan struct{} // closed when the window loop has returned
}

var _ classify.Listener = (*Listener)(nil)

func NewListener(capture Capture, modelURL string, fetcher *model.Fetcher, cfg config.AudioConfig, log zerolog.Logger) *Listener {
	return &Listener{
		capture:  capture,
		fetcher:  fetcher,
		modelURL: modelURL,
		cfg:      cfg,
		log:      log.With().Str("component", "sound-listener").Logger(),
		stop:     make(chan struct{}),
	}
}

// Load downloads the model if needed and builds the network.
func (l *Listener) Load(ctx context.Context) error {
	files, err := l.fetcher.Fetch(ctx, l.modelURL)
	if err != nil {
		return err
	}
	net, err := model.LoadNet(files)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.net != nil {
		l.net.Close()
	}
	l.net = net
	l.mu.Unlock()

	l.log.Info().
		Str("model", net.Metadata().ModelName).
		Strs("labels", net.Metadata().Labels).
		Float64("threshold", l.cfg.ProbabilityThreshold).
		Msg("Sound model loaded")
	return nil
}

// Listen starts the microphone and emits one outcome per audio window until
// ctx is done or the listener is closed.
func (l *Listener) Listen(ctx context.Context) (<-chan classify.Outcome, error) {
	l.mu.Lock()
	net := l.net
	l.mu.Unlock()
	if net == nil {
		return nil, ErrNotLoaded
	}
	return l.start(ctx, func(w []float32) (classify.Results, error) {
		return l.classifyWindow(net, w)
	})
}

type windowFunc func(samples []float32) (classify.Results, error)

func (l *Listener) start(ctx context.Context, classifyWindow windowFunc) (<-chan classify.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.running != nil {
		select {
		case <-l.running:
		default:
			return nil, classify.ErrAlreadyRunning
		}
	}

	// Bounded audio buffer
	samples := make(chan []float32, 8)
	if err := l.capture.Start(ctx, l.cfg.DeviceID, l.cfg.SampleRate, samples); err != nil {
		return nil, err
	}

	out := make(chan classify.Outcome)
	running := make(chan struct{})
	l.running = running
	go func() {
		defer close(running)
		l.run(ctx, classifyWindow, samples, out)
	}()
	return out, nil
}

func (l *Listener) run(ctx context.Context, classifyWindow windowFunc, samples <-chan []float32, out chan<- classify.Outcome) {
	defer close(out)
	defer func() {
		if err := l.capture.Stop(); err != nil {
			l.log.Debug().Err(err).Msg("Microphone stop failed")
		}
	}()

	win := newSlidingWindow(WindowSize, l.cfg.OverlapFactor)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case chunk, ok := <-samples:
			if !ok {
				return
			}
			for _, w := range win.push(chunk) {
				// A buffered chunk can win the select above after shutdown
				if l.done(ctx) {
					return
				}
				results, err := classifyWindow(w)
				select {
				case out <- classify.Outcome{Results: results, Err: err}:
				case <-ctx.Done():
					return
				case <-l.stop:
					return
				}
			}
		}
	}
}

func (l *Listener) done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Listener) classifyWindow(net *model.Net, samples []float32) (classify.Results, error) {
	spec, err := Spectrogram(samples)
	if err != nil {
		return nil, err
	}
	defer spec.Close()

	blob := gocv.BlobFromImage(spec, 1.0, image.Pt(NumBins, NumFrames), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	scores, err := net.Forward(blob)
	if err != nil {
		return nil, err
	}
	ranked := model.Rank(scores, net.Metadata().Labels)
	return model.AtLeast(ranked, l.cfg.ProbabilityThreshold), nil
}

// Close stops listening, waits for the window in progress and frees the
// network. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.stop)
	}
	running := l.running
	l.mu.Unlock()

	if running != nil {
		<-running
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.net == nil {
		return nil
	}
	err := l.net.Close()
	l.net = nil
	return err
}
