package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/internal"
	"github.com/procuregov/authcore/password"
	"github.com/spf13/cobra"
)

var (
	principalID       string
	principalEmail    string
	principalRole     string
	principalStatus   string
	principalPassword string
)

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage principals in the configured store",
}

var principalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace a principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		role := authcore.Role(strings.ToUpper(principalRole))
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", principalRole)
		}
		status, err := parseStatus(principalStatus)
		if err != nil {
			return err
		}
		email := internal.NormalizeEmail(principalEmail)
		if email == "" {
			return errors.New("--email is required")
		}
		plain := principalPassword
		if plain == "" {
			plain = os.Getenv("AUTHCORE_PRINCIPAL_PASSWORD")
		}
		if plain == "" {
			return errors.New("--password or AUTHCORE_PRINCIPAL_PASSWORD is required")
		}

		hasher, err := password.NewArgon2(password.Config(cfg.Engine.Password))
		if err != nil {
			return err
		}
		hash, err := hasher.Hash(plain)
		if err != nil {
			return err
		}

		id := principalID
		if id == "" {
			id = uuid.NewString()
		}

		store, closer, err := openPrincipalWriter(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		err = store.PutPrincipal(cmd.Context(), authcore.Principal{
			ID:           id,
			Email:        email,
			Role:         role,
			Status:       status,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "principal %s (%s, %s) saved\n", id, email, role)
		return nil
	},
}

var principalStatusCmd = &cobra.Command{
	Use:   "set-status",
	Short: "Change the status of an existing principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		status, err := parseStatus(principalStatus)
		if err != nil {
			return err
		}

		store, closer, err := openPrincipalWriter(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		p, err := store.FindPrincipalByID(cmd.Context(), principalID)
		if err != nil {
			return err
		}
		p.Status = status
		if err := store.PutPrincipal(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "principal %s is now %s\n", p.ID, p.Status)
		return nil
	},
}

func parseStatus(s string) (authcore.PrincipalStatus, error) {
	status := authcore.PrincipalStatus(strings.ToUpper(s))
	switch status {
	case authcore.StatusActive, authcore.StatusPending, authcore.StatusSuspended, authcore.StatusInactive:
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func init() {
	rootCmd.AddCommand(principalCmd)
	principalCmd.AddCommand(principalAddCmd, principalStatusCmd)

	principalAddCmd.Flags().StringVar(&principalID, "id", "", "Principal id (default: random UUID)")
	principalAddCmd.Flags().StringVar(&principalEmail, "email", "", "Login email")
	principalAddCmd.Flags().StringVar(&principalRole, "role", string(authcore.RoleSupplier), "ADMIN, SUPPLIER, AGENCY, CITIZEN or AUDITOR")
	principalAddCmd.Flags().StringVar(&principalStatus, "status", string(authcore.StatusActive), "ACTIVE, PENDING, SUSPENDED or INACTIVE")
	principalAddCmd.Flags().StringVar(&principalPassword, "password", "", "Initial password")

	principalStatusCmd.Flags().StringVar(&principalID, "id", "", "Principal id")
	principalStatusCmd.Flags().StringVar(&principalStatus, "status", "", "ACTIVE, PENDING, SUSPENDED or INACTIVE")
	_ = principalStatusCmd.MarkFlagRequired("id")
	_ = principalStatusCmd.MarkFlagRequired("status")
}
