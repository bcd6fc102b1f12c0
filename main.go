// parley - streaming chat client for a remote completion backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/cli"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/state"
	"github.com/jeranaias/parley/internal/stream"
	"github.com/jeranaias/parley/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const configReloadDebounce = 500 * time.Millisecond

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		cli.PrintUsage()
		os.Exit(2)
	}

	if args.ShowHelp {
		cli.PrintUsage()
		return
	}
	if args.ShowVersion {
		cli.PrintVersion()
		return
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args cli.Args) error {
	cfg, cfgPath, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// CLI flags override the file and environment.
	if args.Backend != "" {
		cfg.BackendURL = args.Backend
	}
	if args.UserID != "" {
		cfg.UserID = args.UserID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// State store holds the active session and user identity. A broken
	// store degrades to in-memory state: everything works, nothing
	// persists across restarts.
	var stateStore state.Store
	sqlite, err := state.Open(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: state store unavailable (%v); sessions will not persist\n", err)
		stateStore = state.NewMemoryStore()
	} else {
		stateStore = sqlite
		defer sqlite.Close()
	}

	client := api.NewClientWithConfig(cfg.ClientConfig())
	coord := session.NewCoordinator(stateStore, client)
	if err := coord.Initialize(context.Background()); err != nil {
		if !isDegradedFetch(err) {
			return fmt.Errorf("initialize session: %w", err)
		}
		// History fetch failures degrade to an empty conversation; the
		// client stays interactive.
		fmt.Fprintf(os.Stderr, "Warning: could not load history (%v); starting empty\n", err)
	}

	consumer := stream.NewConsumer(client)

	if args.Line || !cli.WantsTUI() {
		return cli.RunLineMode(coord, consumer, args.Quiet)
	}
	return runTUI(cfg, cfgPath, coord, consumer)
}

// isDegradedFetch reports whether an Initialize error came from the backend
// collaborator rather than the state store. Backend errors are always typed
// api.ClientError; state store errors never are. Only the latter leave the
// coordinator unusable.
func isDegradedFetch(err error) bool {
	var clientErr *api.ClientError
	return errors.As(err, &clientErr)
}

// loadConfig loads from --config when given, otherwise the default search
// path. Returns the path to watch for live reloads.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	if args.ConfigPath != "" {
		cfg, err := config.LoadFromPath(args.ConfigPath)
		return cfg, args.ConfigPath, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	path, pathErr := config.ConfigPathTOML()
	if pathErr != nil {
		path = ""
	}
	return cfg, path, nil
}

// runTUI starts the full-screen interface.
func runTUI(cfg *config.Config, cfgPath string, coord *session.Coordinator, consumer *stream.Consumer) error {
	runner := chat.NewRunner(consumer, coord)
	m := chat.NewModel(coord, runner, cfg.UI)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.UI.MouseEnabled {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(m, opts...)

	// The runner's goroutines publish through the program; the program
	// needs the model first, hence the two-step wiring.
	runner.SetPublisher(p.Send)

	// Live config reload surfaces as a status notice. Connection and
	// identity settings stay fixed for the lifetime of the process.
	if cfgPath != "" {
		watcher, err := config.Watch(cfgPath, configReloadDebounce, func(next *config.Config) {
			p.Send(chat.StatusMsg{Text: "Configuration reloaded (restart to apply connection changes)"})
		})
		if err == nil {
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running parley: %w", err)
	}
	return nil
}
