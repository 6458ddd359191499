//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkPermission(int video) {
    AVMediaType media = video ? AVMediaTypeVideo : AVMediaTypeAudio;
    return (int)[AVCaptureDevice authorizationStatusForMediaType:media];
}

void requestPermission(int video) {
    AVMediaType media = video ? AVMediaTypeVideo : AVMediaTypeAudio;
    [AVCaptureDevice requestAccessForMediaType:media completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

func check(device Device) int {
	video := 0
	if device == Camera {
		video = 1
	}
	return int(C.checkPermission(C.int(video)))
}

func request(device Device) {
	video := 0
	if device == Camera {
		video = 1
	}
	C.requestPermission(C.int(video))
}

// Ensure checks the capture permission for device and triggers the system
// dialog when it has not been granted yet.
func Ensure(device Device) error {
	status := check(device)
	if status == PermissionAuthorized {
		return nil
	}
	if status == PermissionNotDetermined {
		request(device)
	}
	return fmt.Errorf("%w: %s (System Settings → Privacy & Security → %s)", ErrNotGranted, device, settingsPane(device))
}

func settingsPane(device Device) string {
	if device == Camera {
		return "Camera"
	}
	return "Microphone"
}
