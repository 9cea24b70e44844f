package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/config"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/database"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Operational tasks for the BrokeNoMore backend",
		SilenceUsage: true,
	}

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	usersCmd.AddCommand(
		newSetActiveCmd("activate", "Allow a user to sign in again", true),
		newSetActiveCmd("deactivate", "Block a user from signing in", false),
	)

	rootCmd.AddCommand(newMigrateCmd(), usersCmd)
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.CreateSchema(ctx, db); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func newSetActiveCmd(use, short string, active bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")

			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			directory := user.NewDirectory(user.NewRepository(db))
			u, err := directory.FindByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("lookup %q: %w", email, err)
			}

			if err := directory.SetActive(ctx, u.ID, active); err != nil {
				return fmt.Errorf("update %q: %w", email, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %s (%s) is_active=%t\n", u.Email, u.ID, active)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email address of the user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func openDB(ctx context.Context) (*bun.DB, error) {
	cfg := config.LoadDatabase()
	db, err := database.Open(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
