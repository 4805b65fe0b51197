package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/drinks-fyi/pkg/auth"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}
	cmd.AddCommand(newUserAddCmd(c))
	return cmd
}

func newUserAddCmd(c *cli) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an admin user or reset its password",
		Long: `Create an admin user or reset its password.

The password is taken from DRINKS_ADMIN_PASSWORD, or read as the first line
of standard input with --password-stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.New("username is required")
			}

			password := os.Getenv("DRINKS_ADMIN_PASSWORD")
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("no password: set DRINKS_ADMIN_PASSWORD or use --password-stdin")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, c.cfg.Database.Path, c.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpsertUser(ctx, username, hash); err != nil {
				return err
			}
			c.logger.Info().Str("user", username).Msg("Admin user saved")
			fmt.Fprintf(cmd.OutOrStdout(), "saved admin user %s\n", username)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from standard input")
	return cmd
}
