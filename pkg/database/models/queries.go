package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/hints"
)

func ForceIndexHint(index string) hints.Hints {
	forceIndexHint := hints.CommentBefore("where", fmt.Sprintf("FORCE_INDEX = %s", index))
	forceIndexHint.Prefix = "/*@ "
	return forceIndexHint
}

// LatestSchemaVersion returns the most recently created version of the target or nil when the
// target has no history yet.
func LatestSchemaVersion(tx *gorm.DB, targetID uuid.UUID) (*SchemaVersion, error) {
	return latestSchemaVersion(tx.Where("target_id = ?", targetID))
}

// LatestValidSchemaVersion returns the most recent version with valid = true or nil.
func LatestValidSchemaVersion(tx *gorm.DB, targetID uuid.UUID) (*SchemaVersion, error) {
	return latestSchemaVersion(tx.Where("target_id = ? AND valid = ?", targetID, true))
}

func latestSchemaVersion(tx *gorm.DB) (*SchemaVersion, error) {
	version := &SchemaVersion{}
	err := tx.Clauses(ForceIndexHint("idx_schema_versions_target_id")).Order("number desc").First(version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return version, nil
}

// GetTarget loads a target together with its project and organization.
func GetTarget(tx *gorm.DB, targetID uuid.UUID) (*Target, error) {
	target := &Target{}
	err := tx.Preload("Project.Organization").Where("id = ?", targetID).First(target).Error
	if err != nil {
		return nil, err
	}

	return target, nil
}
