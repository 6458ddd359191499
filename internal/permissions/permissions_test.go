package permissions

import "testing"

func TestDeviceString(t *testing.T) {
	if Camera.String() != "camera" {
		t.Errorf("expected camera, got %s", Camera)
	}
	if Microphone.String() != "microphone" {
		t.Errorf("expected microphone, got %s", Microphone)
	}
}
