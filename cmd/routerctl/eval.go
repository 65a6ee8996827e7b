package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/query-router/backend/internal/app"
	"github.com/query-router/backend/internal/evaluation"
)

var (
	datasetFile string
	evalJSON    bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure intent routing against a labelled dataset",
	Long:  `Classify every query in a JSON dataset ({"items":[{"query","expected_intent"}]}) and report accuracy per intent. Nothing is answered or logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(datasetFile)
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}
		dataset, err := evaluation.LoadDataset(data)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			report, err := evaluation.NewEvaluator(a.Classifier).Run(ctx, dataset)
			if err != nil {
				return err
			}
			if evalJSON {
				return printJSON(report)
			}
			fmt.Print(evaluation.GenerateReport(report))
			return nil
		})
	},
}

func init() {
	evalCmd.Flags().StringVarP(&datasetFile, "file", "f", "eval.json", "dataset file")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")

	rootCmd.AddCommand(evalCmd)
}
