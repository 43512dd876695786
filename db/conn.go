// Package db opens the database used by the credential, one-time token and
// consent stores
package db

import (
	"arc/auth-api/config"
	"arc/auth-api/internal/model"
	"errors"
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func New(c config.DB) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch c.Driver {
	case "postgres":
		dialector = postgres.Open(c.DSN)
	case "sqlite":
		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if runningInDocker() {
			if _, err := os.Stat(c.DSN); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", c.DSN)
			}
		}

		dialector = sqlite.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	d, err := Open(dialector)
	if err != nil {
		return nil, err
	}

	if err := Migrate(d); err != nil {
		return nil, err
	}

	return d, nil
}

// Open connects with error translation enabled so unique violations surface
// as gorm.ErrDuplicatedKey on every driver
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	d, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database, %w", err)
	}

	return d, nil
}

func Migrate(d *gorm.DB) error {
	err := d.AutoMigrate(model.User{}, model.OneTimeToken{}, model.Consent{})
	if err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}

func runningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
