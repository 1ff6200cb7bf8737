package appdeployments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
	"github.com/rmb938/franz-graphql-registry/pkg/schemas"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minHashLength = 3
	maxHashLength = 256

	lockedMessage = "App deployment has already been activated and is locked for modifications"
)

type Document struct {
	Hash string `json:"hash"`
	Body string `json:"body"`
}

type DocumentError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

type AddDocumentsResult struct {
	AppDeployment  *dbModels.AppDeployment `json:"appDeployment,omitempty"`
	DocumentErrors []DocumentError         `json:"documentErrors,omitempty"`
	Failure        *registry.Failure       `json:"failure,omitempty"`
}

// AddDocuments stores documents on a pending deployment. Every document is checked against the
// latest valid schema of the target and nothing is stored unless all of them pass.
func (m *Manager) AddDocuments(ctx context.Context, targetID uuid.UUID, name string, version string, documents []Document) (*AddDocumentsResult, error) {
	if _, result, err := m.target(ctx, targetID); err != nil || result != nil {
		if result != nil {
			return &AddDocumentsResult{Failure: result.Failure}, nil
		}
		return nil, err
	}

	appDeployment, err := m.findAppDeployment(m.db.WithContext(ctx), targetID, name, version)
	if err != nil {
		return nil, err
	}
	if appDeployment == nil {
		return &AddDocumentsResult{Failure: failed(registry.ErrorKindNotFound, notFoundMessage).Failure}, nil
	}
	if appDeployment.Status != dbModels.AppDeploymentStatusPending {
		return &AddDocumentsResult{Failure: failed(registry.ErrorKindInputValidation, lockedMessage).Failure}, nil
	}

	latest, err := dbModels.LatestValidSchemaVersion(m.db.WithContext(ctx), targetID)
	if err != nil {
		return nil, transient("error getting latest valid schema version", err)
	}
	if latest == nil || latest.CompositeSDL == "" {
		return &AddDocumentsResult{Failure: failed(registry.ErrorKindInputValidation, "No schema has been published yet").Failure}, nil
	}
	schema, errs := schemas.LoadSDL(latest.CompositeSDL)
	if len(errs) > 0 {
		return nil, transient("error loading latest valid schema", errors.New(errs[0].Message))
	}

	documentErrors := validateDocuments(schema, documents)
	if len(documentErrors) > 0 {
		return &AddDocumentsResult{
			DocumentErrors: documentErrors,
			Failure:        failed(registry.ErrorKindInputValidation, "Invalid documents were provided").Failure,
		}, nil
	}

	locked := false
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// holds the deployment row so an activation either waits for these documents or has
		// already locked the deployment
		pending, err := transition(tx, appDeployment, dbModels.AppDeploymentStatusPending, map[string]any{
			"status": dbModels.AppDeploymentStatusPending,
		})
		if err != nil {
			return err
		}
		if !pending {
			locked = true
			return nil
		}

		for _, document := range documents {
			persisted := &dbModels.PersistedDocument{
				ID:              uuid.New(),
				AppDeploymentID: appDeployment.ID,
				Hash:            document.Hash,
				Body:            document.Body,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "app_deployment_id"}, {Name: "hash"}},
				DoUpdates: clause.AssignmentColumns([]string{"body"}),
			}).Create(persisted).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, transient("error saving persisted documents", err)
	}
	if locked {
		return &AddDocumentsResult{Failure: failed(registry.ErrorKindInputValidation, lockedMessage).Failure}, nil
	}

	m.log.V(1).Info("app deployment documents added", "target", targetID, "app", name, "version", version, "documents", len(documents))
	return &AddDocumentsResult{AppDeployment: appDeployment}, nil
}

func validateDocuments(schema *ast.Schema, documents []Document) []DocumentError {
	var documentErrors []DocumentError
	for i, document := range documents {
		if len(document.Hash) < minHashLength || len(document.Hash) > maxHashLength {
			documentErrors = append(documentErrors, DocumentError{Index: i, Message: "Hash must be at least 3 characters long and at most 256 characters long"})
			continue
		}

		if _, errs := gqlparser.LoadQuery(schema, document.Body); len(errs) > 0 {
			documentErrors = append(documentErrors, DocumentError{Index: i, Message: errs[0].Message})
		}
	}
	return documentErrors
}
