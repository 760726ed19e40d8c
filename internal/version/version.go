package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	// Name of the application
	AppName = "Lockbox"

	// Version of the application
	Version = "0.2.0-dev"

	// Git commit hash of the application
	Revision = "HEAD"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	if Version == "0.2.0-dev" || Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				Revision = s.Value
			}
			if s.Key == "vcs.modified" && s.Value == "true" {
				Revision += "-dirty"
			}
		}
	}
}

// Detailed returns a one-line version string for CLI banners and headers.
func Detailed() string {
	return fmt.Sprintf("%s %s (%s; %s/%s; go%s)",
		AppName, Version, shortRev(), runtime.GOOS, runtime.GOARCH,
		strings.TrimPrefix(runtime.Version(), "go"))
}

func shortRev() string {
	if len(Revision) > 8 {
		return Revision[:8]
	}
	return Revision
}
