//go:build linux

package audio

import "regexp"

// linuxDefaultDevice is the ALSA default PCM, which works on any card with a mic input.
const linuxDefaultDevice = "default"

var arecordCardPattern = regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\],\s+device\s+(\d+)`)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: linuxDefaultDevice,
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string, format CaptureFormat) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", format.rate(),
		"-c", format.channels(),
		"-t", "raw",
		"-q",
		"-",
	}
}

// Devices lists ALSA capture hardware reported by arecord -l.
func (cfg *CaptureConfig) Devices() []Device {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: arecordCardPattern,
		ParseDevice:   parseArecordDevice,
		FallbackDevices: []Device{
			{ID: linuxDefaultDevice, Name: "ALSA default"},
		},
	})
}

func parseArecordDevice(matches []string) *Device {
	if len(matches) < 5 {
		return nil
	}
	return &Device{
		ID:   "plughw:CARD=" + matches[2] + ",DEV=" + matches[4],
		Name: matches[3],
	}
}
