package dbtest

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/database/migrations"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TempDatabase opens a migrated sqlite database backed by a temporary file. The caller removes
// the returned file once done.
func TempDatabase(t *testing.T) (*gorm.DB, string) {
	t.Helper()

	dbFile, err := os.CreateTemp("", "franz-graphql-registry-*.db")
	if err != nil {
		t.Fatal("error creating temp db file:", err)
	}
	_ = dbFile.Close()

	db, err := gorm.Open(sqlite.Open(dbFile.Name()+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal("error opening temp db:", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		t.Fatal("error running migrations:", err)
	}

	return db, dbFile.Name()
}

// Fixture is an organization, project and target created for a single test.
type Fixture struct {
	Organization *dbModels.Organization
	Project      *dbModels.Project
	Target       *dbModels.Target
}

func CreateTarget(t *testing.T, db *gorm.DB, projectType dbModels.ProjectType) *Fixture {
	t.Helper()

	organization := &dbModels.Organization{
		ID:   uuid.New(),
		Slug: "org-" + uuid.NewString()[:8],
	}
	if err := db.Create(organization).Error; err != nil {
		t.Fatal("error creating organization:", err)
	}

	project := &dbModels.Project{
		ID:             uuid.New(),
		OrganizationID: organization.ID,
		Name:           "project",
		Type:           projectType,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatal("error creating project:", err)
	}

	target := &dbModels.Target{
		ID:                   uuid.New(),
		ProjectID:            project.ID,
		Name:                 "production",
		ValidationPeriodDays: 7,
	}
	if err := db.Create(target).Error; err != nil {
		t.Fatal("error creating target:", err)
	}

	return &Fixture{
		Organization: organization,
		Project:      project,
		Target:       target,
	}
}
