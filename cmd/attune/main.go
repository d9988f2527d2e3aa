package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7542"
	pidFile    = "attuned.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "config":
		err = cmdConfig()
	case "topics":
		err = cmdTopics(os.Args[2:])
	case "submit":
		err = cmdSubmit(os.Args[2:])
	case "skills":
		err = cmdSkills(os.Args[2:])
	case "progress":
		err = cmdProgress(os.Args[2:])
	case "stuck":
		err = cmdStuck(os.Args[2:])
	case "prereq":
		err = cmdPrereq(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("attune %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Attune - Adaptive Skill Tracking for Programmers

Usage:
  attune <command> [arguments]

Setup Commands:
  init            Initialize Attune (first-time setup)
  config          Show current configuration

Daemon Commands:
  start           Start the Attune daemon
  stop            Stop the Attune daemon
  status          Show daemon status
  logs            View daemon logs

Skill Commands:
  submit          Record an analyzed submission
  skills          Show tracked skills with display bands
  progress        Show layer unlock progress
  stuck           Show stuck and at-risk topics
  prereq <topic>  Find the weakest prerequisite below a topic

Catalog Commands:
  topics list     List the topic catalog
  topics info     Show one topic with its prerequisites

Analytics Commands:
  stats           Show aggregate skill statistics

Integration Commands:
  mcp             Start MCP server (for editor integration)

Other:
  help            Show this help message
  version         Show version information

Examples:
  attune start                            # Start daemon
  attune submit -t error-handling --fail  # Record a failed submission
  attune skills                           # Show your skill ratings
  attune prereq interfaces                # Find the real gap below a topic`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}

// renderStars renders a display band as filled and empty stars.
func renderStars(stars int) string {
	if stars < 0 {
		stars = 0
	}
	if stars > 5 {
		stars = 5
	}
	return strings.Repeat("★", stars) + strings.Repeat("☆", 5-stars)
}
