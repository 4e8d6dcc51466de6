package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/occgrid/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "populate":
		handlePopulate(args)
	case "info":
		handleInfo(args)
	case "export":
		handleExport(args)
	case "serve":
		handleServe(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("occgrid %s (commit %s, built %s)\n",
			version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`occgrid - Probabilistic 3D occupancy map tools

Usage: occgrid <command> [options]

Commands:
  populate   Build an occupancy map from a point cloud and save a session
  info       Show a saved session summary (or list all sessions)
  export     Export a session's occupied voxels to a text point cloud
  serve      Serve occupancy charts for a saved session over HTTP
  migrate    Manage the map store schema
  version    Show occgrid version
  help       Show this help message

Examples:
  # Build a map from a cloud with a sensor trajectory
  occgrid populate --cloud scan.txt --trajectory traj.txt --store maps.db

  # Build with sub-voxel mean positions at 10 cm resolution
  occgrid populate --cloud scan.txt --resolution 0.1 --voxel-mean --store maps.db

  # Build with a JSON tuning config (flags still override)
  occgrid populate --cloud scan.txt --config tuning.json --store maps.db

  # List saved sessions
  occgrid info --store maps.db

  # Export occupied voxels
  occgrid export --store maps.db --session <uuid> --out cloud.txt

  # Serve slice and histogram charts on :8080
  occgrid serve --store maps.db --session <uuid> --listen :8080`)
}
