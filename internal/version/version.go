// Package version exposes build-time version metadata.
package version

// Version is the semantic version string embedded at build time.
var Version = "0.0.0-src"

// Set version at compile time with
// go build -ldflags "-X github.com/JakeFAU/urlsec-blocklist/internal/version.Version=1.0.0" -o urlsec-blocklist .
