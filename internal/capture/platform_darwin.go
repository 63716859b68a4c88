//go:build darwin

package capture

// ":0" selects the default audio input and no video device.
func platformDefaults() platform {
	return platform{backend: BackendFFmpeg, ffmpegFormat: "avfoundation", ffmpegDevice: ":0"}
}
