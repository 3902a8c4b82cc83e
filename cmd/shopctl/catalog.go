package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/seed"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the active catalog with the seed catalog",
		Long: `Deactivates every category and product, then upserts the seed catalog by
slug. Running it again leaves the same rows behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				return runSeed(ctx, a, cmd.OutOrStdout(), file)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog to load instead of the built-in one")
	return cmd
}

func runSeed(ctx context.Context, a *app.App, out io.Writer, file string) error {
	var (
		catalog *seed.Catalog
		err     error
	)
	if file == "" {
		catalog, err = seed.Default()
	} else {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return err
		}
		catalog, err = seed.Parse(data)
	}
	if err != nil {
		return err
	}

	res, err := seed.Apply(ctx, a.Catalog, catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d categories and %d products\n", res.Categories, res.Products)
	return nil
}
