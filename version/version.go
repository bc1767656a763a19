// Package version haelt die Build-Version, gesetzt via -ldflags
package version

var Version string = "0.0.0"
