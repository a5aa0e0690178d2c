// Package version holds the pumlview build version.
package version

// Version is overridden with -ldflags "-X oss.terrastruct.com/pumlview/lib/version.Version=..."
// in release builds.
var Version = "v0.1.0-HEAD"

// UserAgent identifies pumlview to PlantUML servers.
func UserAgent() string {
	return "pumlview/" + Version
}
