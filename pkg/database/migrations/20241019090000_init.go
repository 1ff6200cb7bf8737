package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func migration20241019090000Init() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "20241019090000_init",
		Migrate: func(tx *gorm.DB) error {
			type Sequence struct {
				Name      string `gorm:"primarykey"`
				NextValue int64  `gorm:"not null"`
			}

			type Organization struct {
				ID                    uuid.UUID `gorm:"primaryKey"`
				Slug                  string    `gorm:"uniqueIndex;not null"`
				AppDeploymentsEnabled bool      `gorm:"not null;default:false"`
				CreatedAt             time.Time `gorm:"not null"`
				UpdatedAt             time.Time `gorm:"not null"`
			}

			type Project struct {
				ID             uuid.UUID `gorm:"primaryKey"`
				OrganizationID uuid.UUID `gorm:"index;not null"`
				Name           string    `gorm:"not null"`
				Type           string    `gorm:"not null"`
				CreatedAt      time.Time `gorm:"not null"`
				UpdatedAt      time.Time `gorm:"not null"`
			}

			type Target struct {
				ID                   uuid.UUID `gorm:"primaryKey"`
				ProjectID            uuid.UUID `gorm:"index;not null"`
				Name                 string    `gorm:"not null"`
				BaseSchema           string
				ValidationEnabled    bool    `gorm:"not null;default:false"`
				ValidationPercentage float64 `gorm:"not null;default:0"`
				ValidationPeriodDays int     `gorm:"not null;default:7"`
				ExcludedClients      datatypes.JSON
				CreatedAt            time.Time `gorm:"not null"`
				UpdatedAt            time.Time `gorm:"not null"`
			}

			type Service struct {
				ID        uuid.UUID `gorm:"primaryKey"`
				TargetID  uuid.UUID `gorm:"uniqueIndex:idx_services_target_id_name;not null"`
				Name      string    `gorm:"uniqueIndex:idx_services_target_id_name;not null"`
				URL       string
				SDL       string `gorm:"not null"`
				Metadata  datatypes.JSON
				CreatedAt time.Time `gorm:"not null"`
				UpdatedAt time.Time `gorm:"not null"`
			}

			type SchemaVersion struct {
				ID                uuid.UUID  `gorm:"primaryKey"`
				Number            int64      `gorm:"uniqueIndex:idx_schema_versions_target_id,priority:2;not null"`
				TargetID          uuid.UUID  `gorm:"uniqueIndex:idx_schema_versions_target_id,priority:1;not null"`
				PreviousVersionID *uuid.UUID `gorm:"uniqueIndex"`
				Action            string     `gorm:"not null"`
				Author            string
				Commit            string
				ServiceName       string
				ServiceURL        string
				SDL               string
				DeletedService    string
				CompositeSDL      string
				SupergraphSDL     string
				IsComposable      bool `gorm:"not null"`
				Valid             bool `gorm:"not null"`
				Forced            bool `gorm:"not null;default:false"`
				Errors            datatypes.JSON
				Changes           datatypes.JSON
				PolicyWarnings    datatypes.JSON
				PolicyErrors      datatypes.JSON
				Contracts         datatypes.JSON
				Services          datatypes.JSON
				CreatedAt         time.Time `gorm:"not null"`
			}

			type SchemaCheck struct {
				ID            uuid.UUID `gorm:"primaryKey"`
				TargetID      uuid.UUID `gorm:"index;not null"`
				ServiceName   string
				Valid         bool `gorm:"not null"`
				SchemaSDL     string
				CompositeSDL  string
				SupergraphSDL string
				Errors        datatypes.JSON
				Warnings      datatypes.JSON
				Changes       datatypes.JSON
				Contracts     datatypes.JSON
				Commit        string
				Author        string
				CreatedAt     time.Time `gorm:"not null"`
			}

			type SchemaPolicy struct {
				ID             uuid.UUID `gorm:"primaryKey"`
				ResourceType   string    `gorm:"uniqueIndex:idx_schema_policies_resource;not null"`
				ResourceID     uuid.UUID `gorm:"uniqueIndex:idx_schema_policies_resource;not null"`
				AllowOverrides bool      `gorm:"not null;default:true"`
				Rules          datatypes.JSON
				CreatedAt      time.Time `gorm:"not null"`
				UpdatedAt      time.Time `gorm:"not null"`
			}

			type Contract struct {
				ID                     uuid.UUID `gorm:"primaryKey"`
				TargetID               uuid.UUID `gorm:"uniqueIndex:idx_contracts_target_id_contract_name;not null"`
				ContractName           string    `gorm:"uniqueIndex:idx_contracts_target_id_contract_name;not null"`
				IncludeTags            datatypes.JSON
				ExcludeTags            datatypes.JSON
				RemoveUnreachableTypes bool           `gorm:"not null;default:false"`
				CreatedAt              time.Time      `gorm:"not null"`
				DisabledAt             gorm.DeletedAt `gorm:"index"`
			}

			type AppDeployment struct {
				ID          uuid.UUID `gorm:"primaryKey"`
				TargetID    uuid.UUID `gorm:"uniqueIndex:idx_app_deployments_target_id_name_version;not null"`
				Name        string    `gorm:"uniqueIndex:idx_app_deployments_target_id_name_version;not null"`
				Version     string    `gorm:"uniqueIndex:idx_app_deployments_target_id_name_version;not null"`
				Status      string    `gorm:"not null"`
				ActivatedAt *time.Time
				RetiredAt   *time.Time
				CreatedAt   time.Time `gorm:"not null"`
				UpdatedAt   time.Time `gorm:"not null"`
			}

			type PersistedDocument struct {
				ID              uuid.UUID `gorm:"primaryKey"`
				AppDeploymentID uuid.UUID `gorm:"uniqueIndex:idx_persisted_documents_app_deployment_id_hash;not null"`
				Hash            string    `gorm:"uniqueIndex:idx_persisted_documents_app_deployment_id_hash;not null"`
				Body            string    `gorm:"not null"`
				CreatedAt       time.Time `gorm:"not null"`
			}

			return tx.AutoMigrate(
				&Sequence{},
				&Organization{},
				&Project{},
				&Target{},
				&Service{},
				&SchemaVersion{},
				&SchemaCheck{},
				&SchemaPolicy{},
				&Contract{},
				&AppDeployment{},
				&PersistedDocument{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			tables := []string{
				"persisted_documents",
				"app_deployments",
				"contracts",
				"schema_policies",
				"schema_checks",
				"schema_versions",
				"services",
				"targets",
				"projects",
				"organizations",
				"sequences",
			}
			for _, table := range tables {
				if err := tx.Migrator().DropTable(table); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
