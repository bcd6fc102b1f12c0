// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing for the parley binary.
//
// Flag formats handled consistently:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)

package cli

import (
	"fmt"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ARGS
// =============================================================================

// Args holds parsed CLI arguments.
type Args struct {
	// Mode selection
	Line        bool // force line mode instead of the TUI
	ShowVersion bool
	ShowHelp    bool

	// Overrides applied on top of the config file
	ConfigPath string // --config PATH: load this file instead of the default
	Backend    string // --backend URL
	UserID     string // --user ID

	Quiet bool

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `parley - streaming chat client

Parley talks to a remote completion backend and renders the streamed
reply as it arrives. With a terminal it runs a full-screen TUI; piped
or with --line it runs a readline-style REPL.

Usage:
  parley                  Start the TUI (default on a terminal)
  parley --line           Start line mode
  parley --version        Show version
  parley --help           Show this help

Flags:
  --config PATH           Load configuration from PATH
  --backend URL           Backend base URL (overrides config)
  --user ID               User id for session scoping (overrides config)
  --line                  Force line mode even on a terminal
  -q, --quiet             Minimal output in line mode

Line mode commands:
  /new                    Start a fresh session
  /sessions               List sessions on the server
  /switch N               Switch to session N from the last listing
  /delete N               Delete session N from the last listing
  /regen                  Regenerate the last reply
  /quit                   Exit

Configuration is read from ~/.parley/config.toml (or config.json) and
PARLEY_* environment variables. See the README for the full reference.
`

// ParseArgs parses raw command-line arguments (without the program name).
func ParseArgs(raw []string) (Args, error) {
	args := Args{Raw: raw}

	i := 0
	for i < len(raw) {
		arg := raw[i]

		name := arg
		value := ""
		hasValue := false
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			name = parts[0]
			value = parts[1]
			hasValue = true
		}

		// takeValue consumes --flag=value or --flag value.
		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(raw) {
				return "", fmt.Errorf("flag %s requires a value", name)
			}
			i++
			return raw[i], nil
		}

		switch name {
		case "--line", "-line":
			args.Line = true
		case "--version", "-v":
			args.ShowVersion = true
		case "--help", "-h":
			args.ShowHelp = true
		case "--quiet", "-q":
			args.Quiet = true
		case "--config":
			v, err := takeValue()
			if err != nil {
				return args, err
			}
			args.ConfigPath = v
		case "--backend":
			v, err := takeValue()
			if err != nil {
				return args, err
			}
			args.Backend = v
		case "--user":
			v, err := takeValue()
			if err != nil {
				return args, err
			}
			args.UserID = v
		default:
			if strings.HasPrefix(name, "-") {
				return args, fmt.Errorf("unknown flag: %s", name)
			}
			return args, fmt.Errorf("unexpected argument: %s", arg)
		}
		i++
	}

	return args, nil
}

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("parley %s (commit %s, built %s, %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
