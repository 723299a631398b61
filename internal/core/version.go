package core

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
)

var Version = buildVersion()

// pseudoVersionHash matches the trailing commit hash of a Go module pseudo-version
// such as v0.0.0-20260217105831-82903d1d8810.
var pseudoVersionHash = regexp.MustCompile(`[-.]\d{14}-[0-9a-f]{12}$`)

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	return versionFromBuildInfo(info)
}

func versionFromBuildInfo(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" && !isPseudoVersion(v) {
		return v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	revision := settings["vcs.revision"]
	if revision == "" {
		return "devel"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}

	v := fmt.Sprintf("devel-%s", revision)
	if settings["vcs.modified"] == "true" {
		v += "-dirty"
	}
	return v
}

// FormatVersion strips the leading "v" of tagged releases; devel versions pass through.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

func isPseudoVersion(v string) bool {
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	return pseudoVersionHash.MatchString(v)
}
