package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProjectType string

const (
	ProjectTypeSingle     ProjectType = "SINGLE"
	ProjectTypeStitching  ProjectType = "STITCHING"
	ProjectTypeFederation ProjectType = "FEDERATION"
)

// IsComposite reports whether schemas of the project are assembled from named services.
func (p ProjectType) IsComposite() bool {
	return p == ProjectTypeStitching || p == ProjectTypeFederation
}

type Organization struct {
	ID                    uuid.UUID
	Slug                  string
	AppDeploymentsEnabled bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Project struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Organization   Organization
	Name           string
	Type           ProjectType
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Target struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Project   Project
	Name      string

	// BaseSchema is appended to every composition of the target.
	BaseSchema string

	ValidationEnabled    bool
	ValidationPercentage float64
	ValidationPeriodDays int
	ExcludedClients      datatypes.JSONSlice[string]

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Service struct {
	ID        uuid.UUID
	TargetID  uuid.UUID
	Name      string
	URL       string
	SDL       string
	Metadata  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}
