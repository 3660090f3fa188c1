//go:build windows

package audio

// buildFFmpegCaptureArgs leaves stdin open so the process can be stopped with 'q'.
func buildFFmpegCaptureArgs(inputFormat, device string, format CaptureFormat) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", format.channels(),
		"-ar", format.rate(),
		"pipe:1",
	}
}
