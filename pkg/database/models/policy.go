package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PolicyResourceType string

const (
	PolicyResourceTypeOrganization PolicyResourceType = "ORGANIZATION"
	PolicyResourceTypeProject      PolicyResourceType = "PROJECT"
)

type PolicyRuleInstance struct {
	RuleID        string         `json:"ruleId"`
	Severity      string         `json:"severity"`
	Configuration datatypes.JSON `json:"configuration,omitempty"`
}

type SchemaPolicy struct {
	ID             uuid.UUID
	ResourceType   PolicyResourceType
	ResourceID     uuid.UUID
	AllowOverrides bool
	Rules          datatypes.JSONSlice[PolicyRuleInstance]
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
