package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"impressionism/internal/config"
	"impressionism/internal/logging"
	"impressionism/internal/policy"
)

var initIfNeeded bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default configuration and builtin rulesets",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initIfNeeded, "if-needed", false, "only initialize when not already initialized")
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logging.Get(logging.CategoryBoot)

	cfgPath, err := config.ConfigPath()
	if err != nil {
		return &configError{err: err}
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if initIfNeeded {
			log.Debugf("already initialized at %s", cfgPath)
			return nil
		}
	} else {
		if err := config.Default().Save(); err != nil {
			return &configError{err: err}
		}
		log.Infof("wrote default configuration to %s", cfgPath)
	}

	rulesDir, err := config.RulesDir()
	if err != nil {
		return &configError{err: err}
	}
	if err := policy.InstallBuiltins(rulesDir, false); err != nil {
		return err
	}

	catalogDir, err := config.CatalogDir()
	if err != nil {
		return &configError{err: err}
	}
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized: config=%s rules=%s catalog=%s\n", cfgPath, rulesDir, catalogDir)
	return nil
}
