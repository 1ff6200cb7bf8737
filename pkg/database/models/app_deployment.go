package models

import (
	"time"

	"github.com/google/uuid"
)

type AppDeploymentStatus string

const (
	AppDeploymentStatusPending AppDeploymentStatus = "pending"
	AppDeploymentStatusActive  AppDeploymentStatus = "active"
	AppDeploymentStatusRetired AppDeploymentStatus = "retired"
)

type AppDeployment struct {
	ID          uuid.UUID
	TargetID    uuid.UUID
	Name        string
	Version     string
	Status      AppDeploymentStatus
	ActivatedAt *time.Time
	RetiredAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PersistedDocument struct {
	ID              uuid.UUID
	AppDeploymentID uuid.UUID
	Hash            string
	Body            string
	CreatedAt       time.Time
}
