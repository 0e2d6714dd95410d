package main

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo holds version information read from the binary.
type BuildInfo struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	Module    string
}

// GetBuildInfo extracts version and VCS details using debug.BuildInfo.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   "dev",
		Commit:    "unknown",
		Date:      "unknown",
		GoVersion: "unknown",
		Module:    "unknown",
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	info.GoVersion = buildInfo.GoVersion
	info.Module = buildInfo.Main.Path
	if v := buildInfo.Main.Version; v != "(devel)" && v != "" {
		info.Version = v
	}

	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.Commit = setting.Value[:min(len(setting.Value), 7)]
		case "vcs.time":
			info.Date = setting.Value
		}
	}
	return info
}

// PrintVersion writes the build information to stdout.
func PrintVersion() {
	info := GetBuildInfo()
	fmt.Printf("sensormon sensor acquisition and logging\n")
	fmt.Printf("Version: %s\n", info.Version)
	fmt.Printf("Commit: %s\n", info.Commit)
	fmt.Printf("Build Date: %s\n", info.Date)
	fmt.Printf("Go Version: %s\n", info.GoVersion)
	fmt.Printf("Module: %s\n", info.Module)
}
