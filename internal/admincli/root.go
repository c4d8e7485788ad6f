// Package admincli implements the gatekeeper operator commands: schema
// migrations, seeding users from YAML, creating users and changing roles.
package admincli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/spf13/cobra"
)

type cli struct {
	open Opener
	in   io.Reader
}

// NewRootCmd builds the command tree. in is read for passwords when it is
// not an interactive terminal.
func NewRootCmd(open Opener, in io.Reader) *cobra.Command {
	c := &cli{open: open, in: in}

	root := &cobra.Command{
		Use:   "gatekeeper-admin",
		Short: "Operator commands for the gatekeeper auth server",
		Long: `gatekeeper-admin manages the gatekeeper database directly.

Connection settings are read the same way the server reads them:
defaults, then the JSON config file, then GATEKEEPER_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)

	root.AddCommand(
		c.migrateCmd(),
		c.seedCmd(),
		c.createUserCmd(),
		c.setRoleCmd(),
		c.setAvatarCmd(),
	)
	return root
}

// withBackend opens the backend, runs fn and closes it.
func (c *cli) withBackend(ctx context.Context, fn func(b Backend) error) error {
	b, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func parseRole(s string) (models.Role, error) {
	r, ok := models.ParseRole(s)
	if !ok {
		return "", fmt.Errorf("invalid role %q: want USER or ADMIN", s)
	}
	return r, nil
}

func describe(err error) error {
	if apiErr, ok := common.AsAPIError(err); ok {
		return errors.New(apiErr.Message)
	}
	return err
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd.Context(), func(b Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func (c *cli) createUserCmd() *cobra.Command {
	var name, email, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a verified password user",
		Long:  `Create a verified password user. The password is read from the terminal without echo.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}

			pw, err := getPassword(c.in, cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			defer common.WipeByteArray(pw)

			return c.withBackend(cmd.Context(), func(b Backend) error {
				u, err := b.CreateUser(cmd.Context(), name, email, string(pw), r)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Email, u.Role, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "e-mail address")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "role (USER or ADMIN)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *cli) setRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <USER|ADMIN>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(args[1])
			if err != nil {
				return err
			}
			return c.withBackend(cmd.Context(), func(b Backend) error {
				u, err := b.SetRole(cmd.Context(), args[0], r)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Email, u.Role)
				return nil
			})
		},
	}
}

func (c *cli) setAvatarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-avatar <email> <image-file>",
		Short: "Upload an avatar image for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd.Context(), func(b Backend) error {
				u, err := b.SetAvatar(cmd.Context(), args[0], args[1])
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "avatar of %s set to %s\n", u.Email, *u.Image)
				return nil
			})
		},
	}
}
