// Package permissions checks camera and microphone access where the OS
// gates it.
package permissions

import "errors"

var ErrNotGranted = errors.New("permission not granted")

type Device int

const (
	Camera Device = iota
	Microphone
)

func (d Device) String() string {
	if d == Camera {
		return "camera"
	}
	return "microphone"
}
