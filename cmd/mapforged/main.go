package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("mapforged version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "serve":
		runServe(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "compile":
		runCompile(os.Args[2:])
	case "dry-run":
		runDryRun(os.Args[2:])
	case "check-ids":
		runCheckIDs(os.Args[2:])
	case "infer-types":
		runInferTypes(os.Args[2:])
	case "version":
		fmt.Printf("mapforged version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: mapforged <command> [options]

Commands:
  serve        Start the mapping API server
  validate     Validate a mapping document
  compile      Compile a mapping into its index artifacts
  dry-run      Execute a mapping over sample rows
  check-ids    Check an id policy against sample rows
  infer-types  Infer column types from sample rows
  version      Print version information

Run 'mapforged <command> --help' for more information on a command.`)
}
