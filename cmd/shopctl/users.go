package main

import (
	"context"
	"fmt"
	"io"

	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/service"
	"github.com/spf13/cobra"
)

func createUserCmd() *cobra.Command {
	var in service.RegisterInput
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account unless one exists for the email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				return runCreateUser(ctx, a, cmd.OutOrStdout(), in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "test@example.com", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "test12345", "account password")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	return cmd
}

func runCreateUser(ctx context.Context, a *app.App, out io.Writer, in service.RegisterInput) error {
	u, created, err := a.Accounts.EnsureUser(ctx, in)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created user %s (id %d)\n", u.Email, u.ID)
	} else {
		fmt.Fprintf(out, "User %s already exists (id %d)\n", u.Email, u.ID)
	}
	return nil
}
