//go:build windows

package capture

// DirectShow has no default device; the config must name one, e.g.
// "audio=Microphone (USB Audio)".
func platformDefaults() platform {
	return platform{backend: BackendFFmpeg, ffmpegFormat: "dshow"}
}
