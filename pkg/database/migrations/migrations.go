package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func all() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		migration20241019090000Init(),
	}
}

// RunMigrations brings the schema up to the latest migration.
func RunMigrations(db *gorm.DB) error {
	if err := gormigrate.New(db, gormigrate.DefaultOptions, all()).Migrate(); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	return nil
}
