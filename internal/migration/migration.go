package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	menudomain "github.com/smallbiznis/dongi/internal/menu/domain"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	sharedcostdomain "github.com/smallbiznis/dongi/internal/sharedcost/domain"
	userdomain "github.com/smallbiznis/dongi/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, parents before children.
func Models() []any {
	return []any{
		&userdomain.User{},
		&eventdomain.Event{},
		&eventdomain.EventHost{},
		&participantdomain.Participant{},
		&participantdomain.EventParticipant{},
		&participantdomain.ParticipantDefaultPayor{},
		&participantdomain.EventPayorOverride{},
		&menudomain.Menu{},
		&menudomain.MenuItem{},
		&selectiondomain.Selection{},
		&selectiondomain.SelectionAllocation{},
		&sharedcostdomain.SharedCost{},
		&chargedomain.EventCharge{},
		&paymentlinkdomain.PaymentLink{},
	}
}

// Run applies the versioned SQL migrations on postgres. Other dialects are
// development targets and get their schema from the gorm models.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

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

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB
	return nil
}
