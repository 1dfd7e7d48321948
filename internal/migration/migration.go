package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the portal, in dependency order.
func Models() []any {
	return []any{
		&companydomain.Company{},
		&companydomain.Contact{},
		&accountdomain.Account{},
		&authdomain.Session{},
		&invitationdomain.Invitation{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the gorm models for dialects
// without embedded migrations.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
