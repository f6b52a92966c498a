// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and shared command context for tierchat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/health"
	"github.com/jeranaias/tierchat/internal/journal"
	"github.com/jeranaias/tierchat/internal/ollama"
	"github.com/jeranaias/tierchat/internal/router"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// =============================================================================
// COMMAND CONTEXT
// =============================================================================

// commandContext carries the persistent flags and lazily opened resources
// shared by all subcommands.
type commandContext struct {
	configFlag   string
	logLevelFlag string
	jsonFlag     bool

	storeOnce sync.Once
	store     *config.Store
	storeErr  error

	// newSender builds the backend transport; tests swap it out.
	newSender func(store *config.Store) router.Sender
}

func newCommandContext() *commandContext {
	return &commandContext{
		newSender: func(store *config.Store) router.Sender {
			return newLiveSender(store)
		},
	}
}

// ensureStore loads the config file named by --config (or the default one)
// exactly once per process.
func (c *commandContext) ensureStore() (*config.Store, error) {
	c.storeOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			var err error
			path, err = config.DefaultPath()
			if err != nil {
				c.storeErr = fmt.Errorf("determine config path: %w", err)
				return
			}
		}
		c.store, c.storeErr = config.OpenStore(path)
	})
	return c.store, c.storeErr
}

// newRouter wires a Router to the live config and, when enabled, the journal.
// The returned close function releases the journal.
func (c *commandContext) newRouter(store *config.Store) (*router.Router, func()) {
	opts := []router.Option{}
	closeFn := func() {}

	cfg := store.Snapshot()
	if cfg.Journal.Enabled {
		j, err := openJournal(cfg)
		if err != nil {
			log.WithError(err).Warn("Journal unavailable")
		} else {
			opts = append(opts, router.WithRecorder(j))
			closeFn = func() { j.Close() }
		}
	}

	return router.New(c.newSender(store), opts...), closeFn
}

// newProber creates a prober that pings through the same transport as routing.
func (c *commandContext) newProber(store *config.Store) *health.Prober {
	var pinger health.Pinger = ollama.NewClient()
	if p, ok := c.newSender(store).(health.Pinger); ok {
		pinger = p
	}
	return health.NewProber(pinger, store.Snapshot)
}

func openJournal(cfg *config.Config) (*journal.Journal, error) {
	path := cfg.Journal.Path
	if path == "" {
		var err error
		path, err = config.DataPath("journal.db")
		if err != nil {
			return nil, err
		}
	}
	return journal.Open(path)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the tierchat command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newCommandContext())
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tierchat",
		Short: "Route chat prompts across fast, smart and remote Ollama backends",
		Long: `tierchat classifies each prompt, sends it to the backend tier that fits
it best and falls back to the local smart tier when the remote reasoner
fails. Clock questions are answered locally without any backend.`,
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			return configureLogging(store.Snapshot().Log, ctx.logLevelFlag, cmd.ErrOrStderr(), false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonFlag, "json", false, "Emit machine-readable JSON")

	rootCmd.AddCommand(newChatCommand(ctx))
	rootCmd.AddCommand(newAskCommand(ctx))
	rootCmd.AddCommand(newClassifyCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newJournalCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// Execute runs the root command against os.Args and returns the process
// exit code.
func Execute() int {
	return run(NewRootCommand(), os.Args[1:], os.Stderr)
}

func run(cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
	}
	return GetExitCode(err)
}
