package main

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
)

type dbHandle = *sqlx.DB

// withDB открывает базу для одноразовой команды и закрывает ее после fn.
func withDB(cmd *cobra.Command, fn func(db dbHandle) error) error {
	ctx, stop := exitOnSignal(cmd.Context())
	defer stop()

	cfg, closeLog, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, role string
	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of a user (USER or ADMIN)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db dbHandle) error {
				users := service.NewUserService(repository.NewUserRepository(db))
				user, err := users.SetRole(cmd.Context(), email, domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				fmt.Printf("User %s (%s) now has role %s\n", user.Username, user.Email, user.Role)
				return nil
			})
		},
	}
	setRole.Flags().StringVar(&email, "email", "", "user email address (required)")
	setRole.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "new role")
	setRole.MarkFlagRequired("email")

	cmd.AddCommand(setRole)
	return cmd
}
