package video

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/model"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// defaultImageSize is the input edge of Teachable Machine image models.
const defaultImageSize = 224

var ErrNotLoaded = errors.New("image model not loaded")

// FrameSource hands out frames to classify.
type FrameSource interface {
	Frame(ctx context.Context) (gocv.Mat, error)
}

// ImageClassifier classifies the current camera frame, one frame per call.
type ImageClassifier struct {
	src      FrameSource
	fetcher  *model.Fetcher
	modelURL string
	log      zerolog.Logger

	mu   sync.Mutex
	net  *model.Net
	size int
}

var _ classify.Classifier = (*ImageClassifier)(nil)

func NewImageClassifier(src FrameSource, modelURL string, fetcher *model.Fetcher, log zerolog.Logger) *ImageClassifier {
	return &ImageClassifier{
		src:      src,
		fetcher:  fetcher,
		modelURL: modelURL,
		log:      log.With().Str("component", "image-classifier").Logger(),
	}
}

// Load downloads the model if needed and builds the network.
func (c *ImageClassifier) Load(ctx context.Context) error {
	files, err := c.fetcher.Fetch(ctx, c.modelURL)
	if err != nil {
		return err
	}
	net, err := model.LoadNet(files)
	if err != nil {
		return err
	}

	size := net.Metadata().ImageSize
	if size <= 0 {
		size = defaultImageSize
	}

	c.mu.Lock()
	if c.net != nil {
		c.net.Close()
	}
	c.net = net
	c.size = size
	c.mu.Unlock()

	c.log.Info().
		Str("model", net.Metadata().ModelName).
		Strs("labels", net.Metadata().Labels).
		Int("input", size).
		Msg("Image model loaded")
	return nil
}

// Classify runs the model on the latest frame, waiting for the camera's
// first frame if necessary.
func (c *ImageClassifier) Classify(ctx context.Context) (classify.Results, error) {
	c.mu.Lock()
	net, size := c.net, c.size
	c.mu.Unlock()
	if net == nil {
		return nil, ErrNotLoaded
	}

	frame, err := c.src.Frame(ctx)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	// Center crop, RGB, scaled to [-1, 1]
	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, true)
	defer blob.Close()

	scores, err := net.Forward(blob)
	if err != nil {
		return nil, err
	}
	return model.Rank(scores, net.Metadata().Labels), nil
}

func (c *ImageClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.net == nil {
		return nil
	}
	err := c.net.Close()
	c.net = nil
	return err
}
