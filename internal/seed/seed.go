package seed

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	"github.com/smallbiznis/portal/internal/auth/password"
	"github.com/smallbiznis/portal/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Portal Admin"

// EnsureBootstrapAdmin creates the first admin account when one is configured
// and no account with that email exists yet. An existing account is promoted
// to admin but its credentials are left alone.
func EnsureBootstrapAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, cfg config.BootstrapConfig, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if strings.TrimSpace(cfg.AdminEmail) == "" {
		return nil
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(cfg.AdminEmail))
	if err != nil {
		return err
	}
	email := strings.ToLower(addr.Address)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account accountdomain.Account
		err := tx.Where("email = ?", email).First(&account).Error
		if err == nil {
			if account.Role == accountdomain.RoleAdmin {
				return nil
			}
			log.Info("promoting bootstrap account to admin", zap.String("account_id", account.ID.String()))
			return tx.Model(&accountdomain.Account{}).
				Where("id = ?", account.ID).
				Updates(map[string]any{
					"role":       accountdomain.RoleAdmin,
					"updated_at": time.Now().UTC(),
				}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := password.Validate(cfg.AdminPassword); err != nil {
			return err
		}
		hashed, err := password.Hash(cfg.AdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		account = accountdomain.Account{
			ID:                  node.Generate(),
			Email:               email,
			DisplayName:         defaultAdminDisplay,
			PasswordHash:        &hashed,
			Role:                accountdomain.RoleAdmin,
			LastPasswordChanged: &now,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		log.Info("bootstrap admin created", zap.String("account_id", account.ID.String()))
		return nil
	})
}
