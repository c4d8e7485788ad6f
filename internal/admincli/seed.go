package admincli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the layout of a seed file:
//
//	users:
//	  - name: Ada Admin
//	    email: ada@gmail.com
//	    password: change-me
//	    role: ADMIN
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sf, nil
}

func (c *cli) seedCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create users listed in a YAML file",
		Long:  `Create the users listed in a YAML file. Users whose e-mail already exists are skipped.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := loadSeedFile(path)
			if err != nil {
				return err
			}

			return c.withBackend(cmd.Context(), func(b Backend) error {
				out := cmd.OutOrStdout()
				created, skipped := 0, 0
				for i, su := range sf.Users {
					if su.Email == "" || su.Password == "" {
						return fmt.Errorf("user %d: email and password are required", i+1)
					}
					role := su.Role
					if role == "" {
						role = "USER"
					}
					r, err := parseRole(role)
					if err != nil {
						return fmt.Errorf("user %s: %w", su.Email, err)
					}

					_, err = b.CreateUser(cmd.Context(), su.Name, su.Email, su.Password, r)
					switch {
					case errors.Is(err, common.ErrUserExists):
						skipped++
						fmt.Fprintf(out, "skip %s: already exists\n", su.Email)
					case err != nil:
						return fmt.Errorf("user %s: %w", su.Email, describe(err))
					default:
						created++
						fmt.Fprintf(out, "created %s\n", su.Email)
					}
				}
				fmt.Fprintf(out, "%d created, %d skipped\n", created, skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "users.yaml", "seed file")
	return cmd
}
