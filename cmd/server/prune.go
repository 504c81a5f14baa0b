package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"visionengine/internal/repository/sqlite"
)

func newPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete session audit records that ended before the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabasePath == "" {
				return fmt.Errorf("session audit is disabled (DB_PATH is empty)")
			}

			db, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := sqlite.NewSessionRepository(db)
			cutoff := time.Now().Add(-olderThan)
			deleted, err := repo.DeleteBefore(cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d session(s) ended before %s\n", deleted, cutoff.Format(time.RFC3339))

			counts, err := repo.CountByOutcome()
			if err != nil {
				return err
			}
			outcomes := make([]string, 0, len(counts))
			for outcome := range counts {
				outcomes = append(outcomes, outcome)
			}
			sort.Strings(outcomes)
			for _, outcome := range outcomes {
				fmt.Printf("  %-10s %d remaining\n", outcome, counts[outcome])
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of the records to delete")
	return cmd
}
