// Package video captures webcam frames and classifies them with an image model.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/petems/live-classify/internal/config"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

var ErrClosed = errors.New("video capture closed")

// Capture owns the camera and keeps the most recent frame.
type Capture struct {
	dev    *gocv.VideoCapture
	width  int
	height int
	log    zerolog.Logger

	mu     sync.RWMutex
	frame  gocv.Mat
	frames int64

	first     chan struct{} // closed once the first frame is stored
	firstOnce sync.Once
	stopped   chan struct{}
	started   bool
	closed    bool
}

// Open opens the camera and asks it for the configured frame size. The size
// is enforced on every frame, so classifiers and renderers can rely on it.
func Open(cfg config.VideoConfig, log zerolog.Logger) (*Capture, error) {
	dev, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.DeviceID, err)
	}

	dev.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	dev.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	return &Capture{
		dev:     dev,
		width:   cfg.Width,
		height:  cfg.Height,
		log:     log.With().Str("component", "video").Logger(),
		frame:   gocv.NewMat(),
		first:   make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Size is the frame size every stored frame has.
func (c *Capture) Size() (width, height int) {
	return c.width, c.height
}

// Start reads frames in the background until ctx is done.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	go c.readLoop(ctx)
	c.log.Info().Int("width", c.width).Int("height", c.height).Msg("Camera started")
	return nil
}

func (c *Capture) readLoop(ctx context.Context) {
	defer close(c.stopped)

	img := gocv.NewMat()
	defer img.Close()
	size := image.Pt(c.width, c.height)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ok := c.dev.Read(&img); !ok || img.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Cameras are free to ignore the requested size
		if img.Cols() != c.width || img.Rows() != c.height {
			gocv.Resize(img, &img, size, 0, 0, gocv.InterpolationLinear)
		}

		c.mu.Lock()
		img.CopyTo(&c.frame)
		c.frames++
		c.mu.Unlock()

		c.firstOnce.Do(func() { close(c.first) })
	}
}

// Frame waits for the first frame if none has arrived yet and returns a copy
// of the latest one. The caller closes it.
func (c *Capture) Frame(ctx context.Context) (gocv.Mat, error) {
	select {
	case <-c.first:
	case <-ctx.Done():
		return gocv.NewMat(), ctx.Err()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return gocv.NewMat(), ErrClosed
	}
	return c.frame.Clone(), nil
}

// Latest returns a copy of the latest frame without waiting.
func (c *Capture) Latest() (gocv.Mat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.frames == 0 {
		return gocv.NewMat(), false
	}
	return c.frame.Clone(), true
}

// Close releases the camera. The context given to Start must be done first.
func (c *Capture) Close() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if started {
		<-c.stopped
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	return c.dev.Close()
}
