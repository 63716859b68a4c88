//go:build !linux && !darwin && !windows

package capture

func platformDefaults() platform {
	return platform{backend: BackendFFmpeg, ffmpegFormat: "oss", ffmpegDevice: "/dev/dsp"}
}
