// Package ffmpeg implements the decoder contract on top of the ffmpeg and
// ffprobe executables.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ToolInfo contains information about an external tool
type ToolInfo struct {
	Name      string // ffmpeg or ffprobe
	Binary    string // Full path to binary
	Version   string // Version string
	Available bool   // Whether tool is available on system
}

var versionPattern = regexp.MustCompile(`version\s+([^\s,]+)`)

// DetectTools looks up ffmpeg and ffprobe. Both are required for playback.
func DetectTools(ffmpegBin, ffprobeBin string) (ffmpeg *ToolInfo, ffprobe *ToolInfo, err error) {
	ffmpeg = detect("ffmpeg", ffmpegBin)
	ffprobe = detect("ffprobe", ResolveFFprobe(ffprobeBin, ffmpegBin))

	if !ffmpeg.Available || !ffprobe.Available {
		return ffmpeg, ffprobe, fmt.Errorf("ffmpeg and ffprobe must both be installed and in PATH (ffmpeg=%t, ffprobe=%t)",
			ffmpeg.Available, ffprobe.Available)
	}
	return ffmpeg, ffprobe, nil
}

func detect(name, bin string) *ToolInfo {
	info := &ToolInfo{Name: name}
	if bin == "" {
		bin = name
	}
	path, err := FindTool(bin)
	if err != nil {
		return info
	}
	info.Binary = path
	info.Available = true
	info.Version, _ = GetVersion(path)
	return info
}

// FindTool searches for a tool in the system PATH
// Returns the full path to the binary or an error if not found
func FindTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// GetVersion runs `<tool> -version` and extracts the version token.
func GetVersion(toolPath string) (string, error) {
	output, err := exec.Command(toolPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get version for %s: %w", toolPath, err)
	}

	version := parseVersion(string(output))
	if version == "" {
		return "", fmt.Errorf("failed to parse version from output: %s", output)
	}
	return version, nil
}

// parseVersion handles "ffmpeg version 6.0 Copyright..." and
// "ffprobe version N-112345-g1234567" first lines.
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	firstLine, _, _ := strings.Cut(output, "\n")
	if matches := versionPattern.FindStringSubmatch(firstLine); len(matches) > 1 {
		return matches[1]
	}
	if len(firstLine) > 0 && len(firstLine) < 100 {
		return firstLine
	}
	return ""
}

// ResolveFFprobe returns the ffprobe binary to use.
//
// Resolution order:
// 1) Explicit ffprobeBin
// 2) Sibling of a concrete ffmpegBin path (.../ffmpeg -> .../ffprobe) if it exists
// 3) "ffprobe" (PATH lookup)
func ResolveFFprobe(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if s := strings.TrimSpace(ffprobeBin); s != "" {
		return s
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if !strings.ContainsRune(ffmpegBin, filepath.Separator) && !strings.ContainsRune(ffmpegBin, '/') {
		return "ffprobe"
	}
	base := strings.TrimSuffix(filepath.Base(ffmpegBin), ".exe")
	if base != "ffmpeg" {
		return "ffprobe"
	}

	name := "ffprobe"
	if strings.HasSuffix(ffmpegBin, ".exe") {
		name += ".exe"
	}
	candidate := filepath.Join(filepath.Dir(ffmpegBin), name)
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return "ffprobe"
}
