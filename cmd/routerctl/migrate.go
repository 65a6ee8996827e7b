package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/query-router/backend/internal/app"
	"github.com/query-router/backend/internal/seed"
)

var seedFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Database.AutoMigrate = true
		store, err := app.OpenStore(context.Background(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("migrations applied (%s)\n", store.Driver())
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load intent rules, few-shot examples and applicants from YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(seedFile)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := app.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := seed.Apply(ctx, store, f)
		if err != nil {
			return err
		}

		fmt.Printf("intents: %d added, %d skipped\n", res.Intents, res.SkippedIntents)
		fmt.Printf("few-shot examples: %d added, %d skipped\n", res.FewShots, res.SkippedFewShots)
		fmt.Printf("applicants: %d added\n", res.Applicants)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "seed file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
