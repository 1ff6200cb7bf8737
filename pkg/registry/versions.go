package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"gorm.io/gorm"
)

// ListVersions returns the version log of a target, newest first.
func (r *Registry) ListVersions(ctx context.Context, targetID uuid.UUID, limit int) ([]dbModels.SchemaVersion, error) {
	query := r.db.WithContext(ctx).
		Clauses(dbModels.ForceIndexHint("idx_schema_versions_target_id")).
		Where("target_id = ?", targetID).
		Order("number desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var versions []dbModels.SchemaVersion
	if err := query.Find(&versions).Error; err != nil {
		return nil, transient("error listing schema versions", err)
	}
	return versions, nil
}

// GetVersion returns nil when the version does not exist.
func (r *Registry) GetVersion(ctx context.Context, targetID uuid.UUID, versionID uuid.UUID) (*dbModels.SchemaVersion, error) {
	version := &dbModels.SchemaVersion{}
	err := r.db.WithContext(ctx).Where("target_id = ? AND id = ?", targetID, versionID).First(version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transient("error getting schema version", err)
	}
	return version, nil
}

// ListServices returns the accepted services of a composite target.
func (r *Registry) ListServices(ctx context.Context, targetID uuid.UUID) ([]dbModels.ServiceSnapshot, error) {
	return currentServices(r.db.WithContext(ctx), targetID)
}
