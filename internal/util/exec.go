package util

import "os/exec"

// ResolveExecutable returns the path to a capture binary.
// If customPath is set, it must resolve; otherwise name is searched in PATH.
// Returns an empty string if nothing usable is found.
func ResolveExecutable(customPath, name string) string {
	if customPath != "" {
		if p, err := exec.LookPath(customPath); err == nil {
			return p
		}
		return ""
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return p
}
