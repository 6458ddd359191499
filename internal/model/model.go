// Package model fetches a trained classifier from its model URL and runs it
// through OpenCV's DNN module.
package model

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

var ErrNetClosed = errors.New("model: network closed")

// Net is a loaded ONNX classifier plus its labels.
type Net struct {
	mu       sync.Mutex // Protects inference
	net      gocv.Net
	metadata Metadata
	closed   bool
}

// LoadNet reads the metadata and ONNX model from files.
func LoadNet(files Files) (*Net, error) {
	data, err := os.ReadFile(files.Metadata)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	md, err := ParseMetadata(data)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(files.Model); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", files.Model)
	}

	net := gocv.ReadNetFromONNX(files.Model)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", files.Model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Net{net: net, metadata: md}, nil
}

func (n *Net) Metadata() Metadata { return n.metadata }

// Forward runs one blob through the network and returns the raw class scores.
func (n *Net) Forward(blob gocv.Mat) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNetClosed
	}

	n.net.SetInput(blob, "")
	out := n.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("model produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// Close frees the network. Forward fails with ErrNetClosed afterwards.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.net.Close()
}
