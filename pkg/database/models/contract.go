package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Contract struct {
	ID                                        uuid.UUID
	TargetID                                  uuid.UUID
	ContractName                              string
	IncludeTags                               datatypes.JSONSlice[string]
	ExcludeTags                               datatypes.JSONSlice[string]
	RemoveUnreachableTypesFromPublicAPISchema bool `gorm:"column:remove_unreachable_types"`
	CreatedAt                                 time.Time
	DisabledAt                                gorm.DeletedAt
}
