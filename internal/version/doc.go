// Package version exposes build metadata of the alarm-health binary.
//
// Version, Commit and BuildTime are injected with -ldflags "-X ..." at build
// time. Without ldflags the module version from the build info is used.
package version
