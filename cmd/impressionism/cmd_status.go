package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a catalog summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "skills: %d total", stats.TotalSkills)
	for _, bucket := range []string{"user", "project", "plugin"} {
		if n, ok := stats.SkillsBySource[bucket]; ok {
			fmt.Fprintf(out, ", %d %s", n, bucket)
		}
	}
	fmt.Fprintln(out)
	if stats.StubSkills > 0 {
		fmt.Fprintf(out, "stubs (no embedding): %d\n", stats.StubSkills)
	}
	if !stats.LastIndexedAt.IsZero() {
		fmt.Fprintf(out, "last indexed: %s\n", stats.LastIndexedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "sessions: %d\n", stats.SessionCount)
	return nil
}
