package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/internal/repository"
	"github.com/noah-isme/academy-enrollment-api/internal/service"
)

func newCreateAdminCommand() *cobra.Command {
	var (
		username string
		password string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or reset a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *sqlx.DB) error {
				auth := service.NewAuthService(repository.NewUserRepository(db), repository.NewStudentRepository(db), validator.New(), zap.NewNop(), service.AuthConfig{})
				user, err := auth.ProvisionUser(ctx, dto.ProvisionUserRequest{
					Username: username,
					Password: password,
					Role:     models.Role(role),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s (%s) ready\n", user.Username, user.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 characters)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "admin or teacher")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
