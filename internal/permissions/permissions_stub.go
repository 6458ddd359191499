//go:build !darwin

package permissions

// Ensure is a no-op on non-macOS platforms.
func Ensure(device Device) error {
	return nil
}
