package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	banktransferdomain "github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	directdebitdomain "github.com/smallbiznis/jukubill/internal/directdebit/domain"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"gorm.io/gorm"
)

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
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the billing core.
func Models() []any {
	return []any{
		&sequence.Counter{},
		&catalogdomain.Guardian{},
		&catalogdomain.Student{},
		&catalogdomain.PurchasedItem{},
		&catalogdomain.Contract{},
		&catalogdomain.SeminarEnrollment{},
		&catalogdomain.Discount{},
		&catalogdomain.MileUsage{},
		&ledgerdomain.GuardianBalance{},
		&ledgerdomain.OffsetLog{},
		&billingdomain.ConfirmedBilling{},
		&paymentdomain.Payment{},
		&paymentdomain.PaymentAllocation{},
		&deadlinedomain.MonthlyBillingDeadline{},
		&banktransferdomain.BankTransferImport{},
		&banktransferdomain.BankTransfer{},
		&banktransferdomain.ImportRowError{},
		&directdebitdomain.DebitExportBatch{},
		&directdebitdomain.DebitExportLine{},
	}
}

// Apply brings the schema up to date. Postgres runs the versioned SQL
// migrations; other dialects are auto-migrated from the models.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return conn.AutoMigrate(Models()...)
}
