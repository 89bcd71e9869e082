package version

// version is overridden at build time via -ldflags.
var version = "0.0.0-dev"

// Get returns the client version.
func Get() string {
	return version
}
