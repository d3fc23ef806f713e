// Package buildinfo holds the single version string every stage reports
// through its --version flag (spec.md §6: "Each stage accepts --help and
// --version"), so a packager only has one -ldflags -X target to set instead
// of one per plugin binary.
package buildinfo

import (
	"flag"
	"fmt"
	"io"
)

// Version is overridden at link time with -ldflags
// "-X github.com/zsiec/tsproc/internal/buildinfo.Version=...".
var Version = "dev"

// VersionFlag registers --version on fs, matching the style of every other
// plugin flag, and returns the pointer New's caller checks after Parse.
func VersionFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("version", false, "print the plugin version and exit")
}

// PrintVersion writes the conventional "name version" line --version prints,
// the same way flag.FlagSet.Usage writes --help's output: to fs's own
// configured Output, not unconditionally to stderr.
func PrintVersion(w io.Writer, name string) {
	fmt.Fprintf(w, "tsp-%s %s\n", name, Version)
}
