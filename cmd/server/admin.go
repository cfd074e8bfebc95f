package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/auth"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

func newCreateAdminCmd() *cobra.Command {
	var username, email, password string
	var superuser bool

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, or promote an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || len(password) < 8 {
				return errors.New("--username, --email and a --password of at least 8 characters are required")
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			metaDB, err := storage.ConnectMetadataDB(cfg)
			if err != nil {
				return err
			}
			defer metaDB.Close()

			ctx := cmd.Context()
			existing, err := storage.FindUserByEmail(ctx, metaDB, email)
			if err == nil {
				if err := storage.SetUserPrivileges(ctx, metaDB, existing.UserID, superuser, !superuser); err != nil {
					return err
				}
				customLog.Printf("Promoted existing user %s (superuser=%t)", existing.Username, superuser)
				return nil
			}
			if !errors.Is(err, storage.ErrUserNotFound) {
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			admin := &domain.User{
				UserID:       uuid.New().String(),
				Username:     username,
				Email:        email,
				PasswordHash: hash,
				IsSuperuser:  superuser,
				IsStaff:      !superuser,
			}
			if err := storage.CreateUser(ctx, metaDB, admin); err != nil {
				return err
			}
			customLog.Printf("Created administrator %s (superuser=%t)", username, superuser)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&superuser, "superuser", true, "grant superuser rights; false creates a staff account")
	return cmd
}

func newIssueTokenCmd() *cobra.Command {
	var permissions string

	cmd := &cobra.Command{
		Use:   "issue-token <database>",
		Short: "Enable API access for a database and print a new token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := domain.ParseCapabilities(strings.Split(permissions, ","))
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			metaDB, err := storage.ConnectMetadataDB(cfg)
			if err != nil {
				return err
			}
			defer metaDB.Close()

			gateway, err := storage.NewGateway(cfg.SQLiteDatabasesDir, cfg.BusyTimeout)
			if err != nil {
				return err
			}
			databases := service.NewDatabaseService(metaDB, gateway, auth.NewAPITokenManager(cfg.APITokenSecret, cfg.APITokenLifetime))

			cred, err := issueToken(cmd.Context(), databases, args[0], perms)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cred.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&permissions, "permissions", "read", "comma separated capabilities: read,create,update,delete")
	return cmd
}

// issueToken enables API access on behalf of the database owner.
func issueToken(ctx context.Context, databases *service.DatabaseService, name string, perms []domain.Capability) (*domain.ApiCredential, error) {
	db, err := storage.FindDatabaseByName(ctx, databases.DB, name)
	if err != nil {
		return nil, err
	}
	owner, err := storage.FindUserByUserId(ctx, databases.DB, db.OwnerID)
	if err != nil {
		return nil, err
	}
	return databases.UpdateAPISettings(ctx, owner, name, true, perms)
}
