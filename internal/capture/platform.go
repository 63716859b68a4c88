package capture

// platform holds the per-OS backend defaults.
type platform struct {
	backend      string
	ffmpegFormat string
	ffmpegDevice string
}
