//go:build darwin

package silero

// DefaultProvider returns "coreml": CoreML provides hardware acceleration
// via the Apple Neural Engine on every currently supported macOS build.
func DefaultProvider() string {
	return "coreml"
}

// AvailableProviders lists the inference providers usable on this platform.
func AvailableProviders() []string {
	return []string{"cpu", "coreml"}
}

// HasNvidiaGPU always returns false: macOS has no supported NVIDIA path.
func HasNvidiaGPU() bool {
	return false
}
