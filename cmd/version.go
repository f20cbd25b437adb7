package cmd

import (
	"fmt"
	"runtime/debug"
)

// Version is set at build time via -ldflags. Falls back to module build info
// for go install builds.
var Version = "dev"

func runVersion() {
	version := Version
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("bqchat %s\n", version)
}
