// Package version holds build metadata injected with -ldflags -X.
package version

// Set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent is the product token sent on outbound requests.
func UserAgent() string {
	return "TrackSignal/" + Version
}
