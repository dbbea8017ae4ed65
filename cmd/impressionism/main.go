// Command impressionism is a context-aware skill selector for an
// interactive coding assistant. It is invoked by the host's lifecycle
// hooks: events arrive on stdin, context hints leave on stdout.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"impressionism/internal/config"
	"impressionism/internal/embedding"
	"impressionism/internal/logging"
	"impressionism/internal/policy"
	"impressionism/internal/store"
)

// Exit codes per the hook contract.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitStore  = 3
	exitPolicy = 4
)

var (
	verbose bool
	budget  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "impressionism",
	Short: "Context-aware skill discovery and activation for coding assistants",
	Long: `impressionism maintains an embedding-indexed catalog of skill
documents, logs conversation events per session, and evaluates scripted
rulesets that decide which skills to surface into the assistant's
context at each lifecycle checkpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Initialize(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&budget, "timeout", 0, "wall-clock budget for this invocation")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "impressionism: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps error kinds to the hook contract's exit codes.
func exitCodeFor(err error) int {
	var policyErr *policy.PolicyError
	var sandboxErr *policy.SandboxError
	var cfgErr *configError

	switch {
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, store.ErrStoreBusy),
		errors.Is(err, store.ErrSchemaMismatch):
		return exitStore
	case errors.As(err, &policyErr), errors.As(err, &sandboxErr):
		return exitPolicy
	default:
		return exitError
	}
}

// configError marks configuration problems for exit-code mapping.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// loadConfig loads configuration, wrapping failures as config errors.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

// openStore opens the catalog with settings from configuration.
func openStore(cfg *config.Config) (*store.Store, error) {
	dir, err := config.CatalogDir()
	if err != nil {
		return nil, &configError{err: err}
	}
	return store.Open(dir, store.Options{
		Dimension:   cfg.Embedding.Dimension,
		LockTimeout: time.Duration(cfg.LockTimeoutSec) * time.Second,
	})
}

// newEngine builds the configured embedding engine.
func newEngine(cfg *config.Config) (embedding.Engine, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		Dimension:      cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, &configError{err: err}
	}
	return engine, nil
}
