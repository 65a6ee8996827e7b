package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/query-router/backend/internal/app"
	"github.com/query-router/backend/internal/query"
)

// withApp builds the full pipeline for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Show keyword-rule and model classifications for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.Engine.ClassifyOnly(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose <query>",
	Short: "Split a query into its document and database parts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.Engine.DecomposeOnly(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Answer a query through the full pipeline and log it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.Engine.Route(ctx, query.Request{Query: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(routeCmd)
}
