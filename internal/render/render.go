// Package render draws the current label onto frames for display.
//
// OpenCV's Hershey fonts only cover ASCII, so other characters are drawn as
// '?' on frames. The web page shows the full label over the frame.
package render

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	"gocv.io/x/gocv"
)

// Size of the audio demo canvas.
const (
	CanvasWidth  = 320
	CanvasHeight = 240
)

const (
	font = gocv.FontHersheySimplex

	// Label band covers the bottom sixth of a video frame (80px at 480).
	bandDivisor = 6
	bandAlpha   = 150.0 / 255.0

	videoFontScale  = 1.2
	canvasFontScale = 0.9
	thickness       = 2
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// band returns the label band for a frame and the y of the text centre.
func band(width, height int) (image.Rectangle, int) {
	h := height / bandDivisor
	r := image.Rect(0, height-h, width, height)
	return r, height - h/2
}

// Overlay darkens the bottom band of frame and writes label centred in it.
func Overlay(frame *gocv.Mat, label string) {
	if frame.Empty() {
		return
	}

	rect, textY := band(frame.Cols(), frame.Rows())
	roi := frame.Region(rect)
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rect.Dy(), rect.Dx(), frame.Type())
	gocv.AddWeighted(roi, 1-bandAlpha, black, bandAlpha, 0, &roi)
	black.Close()
	roi.Close()

	putCentered(frame, label, frame.Cols()/2, textY, videoFontScale)
}

// Canvas returns a black width x height image with label in the middle.
func Canvas(width, height int, label string) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
	putCentered(&img, label, width/2, height/2, canvasFontScale)
	return img
}

func putCentered(img *gocv.Mat, label string, cx, cy int, scale float64) {
	label = asciiLabel(label)
	size := gocv.GetTextSize(label, font, scale, thickness)
	org := image.Pt(cx-size.X/2, cy+size.Y/2)
	gocv.PutText(img, label, org, font, scale, white, thickness)
}

// asciiLabel replaces each non-ASCII rune with a single '?', so the text is
// measured and centred the way it is drawn.
func asciiLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if r >= utf8.RuneSelf {
			return '?'
		}
		return r
	}, label)
}

// JPEG encodes img for the web surface.
func JPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
