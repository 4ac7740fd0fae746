package utils

import "os"

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ReadBuildInfo fills unset link-time values from ESTIMATE_COMMIT and
// ESTIMATE_BUILD_TIME.
func ReadBuildInfo(version, commit, buildTime string) BuildInfo {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = SafeEnv("ESTIMATE_COMMIT", "unknown")
	}
	if buildTime == "" {
		buildTime = SafeEnv("ESTIMATE_BUILD_TIME", "unknown")
	}
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
