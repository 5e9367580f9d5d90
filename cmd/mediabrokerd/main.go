package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/avkit/mediabroker/pkg/broker"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.Parse()
}

func main() {

	// first we need a logger
	logger, err := broker.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	// create the daemon instance
	d, err := broker.NewDaemon(logger, verbose)
	if err != nil {
		named.Fatalw("Failed to create daemon object", "error", err)
	}

	// set its version info for the startup log line
	if buildType != "" && (versionTag != "" || gitCommit != "") {
		versionString := versionTag
		if versionString == "" {
			versionString = gitCommit
		}

		d.SetVersion(versionString)
	}

	// onwards, to glory
	if err = d.Initialize(); err != nil {
		named.Fatalw("Failed to initialize daemon", "error", err)
		os.Exit(1)
	}
}
