//go:build linux

package capture

func platformDefaults() platform {
	return platform{backend: BackendARecord, ffmpegFormat: "alsa", ffmpegDevice: "default"}
}
