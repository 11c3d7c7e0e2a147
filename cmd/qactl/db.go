package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/app"
	"shaneshark.com/portfolio/internal/store"
)

func (c *cli) initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the schema or indexes of the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStore(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("store not reachable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", c.cfg.Store.Driver)
			return nil
		},
	}
}

func (c *cli) userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage registered users",
	}

	var role string
	promote := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant a registered user the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != store.RoleAdmin && role != store.RoleUser {
				return fmt.Errorf("role must be %q or %q", store.RoleAdmin, store.RoleUser)
			}
			email := strings.TrimSpace(args[0])

			st, err := app.OpenStore(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpdateUserRole(cmd.Context(), email, role); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no user registered with %s", email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, role)
			return nil
		},
	}
	promote.Flags().StringVar(&role, "role", store.RoleAdmin, "role to set (admin or user)")

	user.AddCommand(promote)
	return user
}
