package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Release builds override these via ldflags, e.g.
// -X github.com/driftsync/driftsync/internal/version.Version=1.0.0
var (
	AppName   = "DriftSync"
	Version   = devVersion
	Revision  = devRevision
	BuildDate = ""
)

const (
	devVersion  = "0.3.0-dev"
	devRevision = "HEAD"
)

func init() {
	resolveFromBuildInfo()
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}

// resolveFromBuildInfo fills in whatever ldflags left at the dev defaults,
// using the metadata Go embeds into module builds.
func resolveFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	applyBuildInfo(info.Main.Version, settings)
}

func applyBuildInfo(mainVersion string, settings map[string]string) {
	// `go install module@vX.Y.Z` builds carry the module version.
	if (Version == devVersion || Version == "") && mainVersion != "" && mainVersion != "(devel)" {
		Version = strings.TrimPrefix(mainVersion, "v")
	}

	// Source builds carry the VCS state instead.
	if Revision == devRevision || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short renders "0.3.0-dev (HEAD)".
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// ShortWithApp prefixes Short with the application name.
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed adds the toolchain, platform and build date to Short.
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)",
		Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

// DetailedWithApp prefixes Detailed with the application name.
func DetailedWithApp() string {
	return AppName + " " + Detailed()
}
