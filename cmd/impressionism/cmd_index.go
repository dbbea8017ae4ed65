package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"impressionism/internal/config"
	"impressionism/internal/indexer"
	"impressionism/internal/skills"
)

var (
	indexForce bool
	indexQuick bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index skill documents from configured directories",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-index everything, ignoring content hashes")
	indexCmd.Flags().BoolVar(&indexQuick, "quick", false, "bounded additive pass: upserts only, never deletes")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	discovery := skills.NewDiscovery(cfg.Indexing.Directories, cfg.Indexing.Patterns, cfg.Indexing.Ignore)
	ix := indexer.New(st, engine, discovery, config.DefaultBodyChars)

	ctx := cmd.Context()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	quickBudget := time.Duration(0)
	if indexQuick && budget == 0 {
		quickBudget = 5 * time.Second
	}

	res, err := ix.Run(ctx, indexer.Options{Force: indexForce, Quick: indexQuick, Budget: quickBudget})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, skipped %d, deleted %d (%d discovered, %d parse errors)\n",
		res.Indexed, res.Skipped, res.Deleted, res.Discovered, len(res.ParseErrors))
	return nil
}
