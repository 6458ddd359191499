package audio

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Spectrogram geometry expected by Teachable Machine sound models: 43 frames
// of 1024 samples, keeping the lowest 232 frequency bins.
const (
	FFTSize   = 1024
	NumFrames = 43
	NumBins   = 232

	// WindowSize is the number of samples one classification consumes.
	WindowSize = FFTSize * NumFrames
)

// Spectrogram turns WindowSize samples into a NumFrames x NumBins CV_32F
// matrix of dB magnitudes normalised to zero mean and unit variance. The
// caller closes the result.
func Spectrogram(samples []float32) (gocv.Mat, error) {
	if len(samples) < WindowSize {
		return gocv.NewMat(), fmt.Errorf("spectrogram needs %d samples, got %d", WindowSize, len(samples))
	}

	window := hann(FFTSize)
	frame := gocv.NewMatWithSize(1, FFTSize, gocv.MatTypeCV32F)
	defer frame.Close()
	spectrum := gocv.NewMat()
	defer spectrum.Close()

	values := make([]float32, 0, NumFrames*NumBins)
	for f := 0; f < NumFrames; f++ {
		seg := samples[f*FFTSize : (f+1)*FFTSize]
		for i, s := range seg {
			frame.SetFloatAt(0, i, s*window[i])
		}

		gocv.DFT(frame, &spectrum, gocv.DftComplexOutput)

		for b := 0; b < NumBins; b++ {
			v := spectrum.GetVecfAt(0, b)
			mag := math.Hypot(float64(v[0]), float64(v[1]))
			values = append(values, float32(20*math.Log10(mag+1e-10)))
		}
	}

	normalize(values)

	out := gocv.NewMatWithSize(NumFrames, NumBins, gocv.MatTypeCV32F)
	for f := 0; f < NumFrames; f++ {
		for b := 0; b < NumBins; b++ {
			out.SetFloatAt(f, b, values[f*NumBins+b])
		}
	}
	return out, nil
}

// hann returns a Hann window of n points.
func hann(n int) []float32 {
	w := make([]float32, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// normalize shifts values to zero mean and scales them to unit variance in
// place. A constant input becomes all zeros.
func normalize(values []float32) {
	if len(values) == 0 {
		return
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))

	for i, v := range values {
		if std == 0 {
			values[i] = 0
			continue
		}
		values[i] = float32((float64(v) - mean) / std)
	}
}

// slidingWindow collects samples into overlapping windows.
type slidingWindow struct {
	buf  []float32
	size int
	hop  int
}

// newSlidingWindow emits windows of size samples, advancing size*(1-overlap)
// samples between consecutive windows.
func newSlidingWindow(size int, overlap float64) *slidingWindow {
	hop := int(float64(size) * (1 - overlap))
	if hop < 1 {
		hop = 1
	}
	if hop > size {
		hop = size
	}
	return &slidingWindow{
		buf:  make([]float32, 0, size+hop),
		size: size,
		hop:  hop,
	}
}

// push appends samples and returns every window that became complete.
func (w *slidingWindow) push(samples []float32) [][]float32 {
	w.buf = append(w.buf, samples...)

	var windows [][]float32
	for len(w.buf) >= w.size {
		win := make([]float32, w.size)
		copy(win, w.buf[:w.size])
		windows = append(windows, win)
		w.buf = append(w.buf[:0], w.buf[w.hop:]...)
	}
	return windows
}
