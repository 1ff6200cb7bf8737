package appdeployments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/metrics"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	featureDisabledMessage = "This organization has no access to app deployments. Please contact the Hive team for early access."
	notFoundMessage        = "App deployment not found"

	maxNameLength = 64
)

// Manager drives app deployments through pending, active and retired. Documents of active
// deployments are served from the artifact store.
type Manager struct {
	db        *gorm.DB
	publisher *artifacts.Publisher
	log       logr.Logger
	metrics   *metrics.Metrics
}

func NewManager(db *gorm.DB, publisher *artifacts.Publisher, log logr.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		db:        db,
		publisher: publisher,
		log:       log,
		metrics:   m,
	}
}

type Result struct {
	AppDeployment *dbModels.AppDeployment `json:"appDeployment,omitempty"`
	IsSkipped     bool                    `json:"isSkipped,omitempty"`
	Failure       *registry.Failure       `json:"failure,omitempty"`
}

func failed(kind registry.ErrorKind, format string, args ...any) *Result {
	return &Result{Failure: &registry.Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

func transient(op string, err error) error {
	return &registry.TransientError{Op: op, Err: err}
}

func validateNameVersion(name string, version string) *Result {
	switch {
	case name == "":
		return failed(registry.ErrorKindInputValidation, "App name must not be empty")
	case len(name) > maxNameLength:
		return failed(registry.ErrorKindInputValidation, "App name must be at most %d characters long", maxNameLength)
	case version == "":
		return failed(registry.ErrorKindInputValidation, "App version must not be empty")
	case len(version) > maxNameLength:
		return failed(registry.ErrorKindInputValidation, "App version must be at most %d characters long", maxNameLength)
	}
	return nil
}

func (m *Manager) findAppDeployment(tx *gorm.DB, targetID uuid.UUID, name string, version string) (*dbModels.AppDeployment, error) {
	appDeployment := &dbModels.AppDeployment{}
	err := tx.Where("target_id = ? AND name = ? AND version = ?", targetID, name, version).First(appDeployment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transient("error getting app deployment", err)
	}
	return appDeployment, nil
}

// target loads a target whose organization has access to app deployments.
func (m *Manager) target(ctx context.Context, targetID uuid.UUID) (*dbModels.Target, *Result, error) {
	target, err := dbModels.GetTarget(m.db.WithContext(ctx), targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failed(registry.ErrorKindNotFound, "Target not found"), nil
		}
		return nil, nil, transient("error getting target", err)
	}
	if !target.Project.Organization.AppDeploymentsEnabled {
		return nil, failed(registry.ErrorKindInputValidation, featureDisabledMessage), nil
	}
	return target, nil, nil
}

// Create returns the existing deployment when one with the same name and version is pending or
// active.
func (m *Manager) Create(ctx context.Context, targetID uuid.UUID, name string, version string) (*Result, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if result := validateNameVersion(name, version); result != nil {
		return result, nil
	}

	target, result, err := m.target(ctx, targetID)
	if err != nil || result != nil {
		return result, err
	}

	// concurrent creates of the same deployment all end up reading the one row
	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_id"}, {Name: "name"}, {Name: "version"}},
		DoNothing: true,
	}).Create(&dbModels.AppDeployment{
		ID:       uuid.New(),
		TargetID: target.ID,
		Name:     name,
		Version:  version,
		Status:   dbModels.AppDeploymentStatusPending,
	}).Error
	if err != nil {
		return nil, transient("error creating app deployment", err)
	}

	appDeployment, err := m.findAppDeployment(m.db.WithContext(ctx), target.ID, name, version)
	if err != nil {
		return nil, err
	}
	if appDeployment == nil {
		return nil, transient("error creating app deployment", errors.New("app deployment missing after create"))
	}

	if appDeployment.Status == dbModels.AppDeploymentStatusRetired {
		return failed(registry.ErrorKindInputValidation, "App deployment %s@%s has been retired", name, version), nil
	}

	m.log.V(1).Info("app deployment created", "target", target.ID, "app", name, "version", version, "status", appDeployment.Status)
	return &Result{AppDeployment: appDeployment}, nil
}

// transition moves a deployment from one status to another inside tx. It reports false when the
// deployment is no longer in the from status.
func transition(tx *gorm.DB, appDeployment *dbModels.AppDeployment, from dbModels.AppDeploymentStatus, updates map[string]any) (bool, error) {
	update := tx.Model(&dbModels.AppDeployment{}).
		Where("id = ? AND status = ?", appDeployment.ID, from).
		Updates(updates)
	if update.Error != nil {
		return false, update.Error
	}
	return update.RowsAffected > 0, nil
}

// Activate publishes the documents of a pending deployment and marks it active.
func (m *Manager) Activate(ctx context.Context, targetID uuid.UUID, name string, version string) (*Result, error) {
	if _, result, err := m.target(ctx, targetID); err != nil || result != nil {
		return result, err
	}

	appDeployment, err := m.findAppDeployment(m.db.WithContext(ctx), targetID, name, version)
	if err != nil {
		return nil, err
	}
	if appDeployment == nil {
		return failed(registry.ErrorKindNotFound, notFoundMessage), nil
	}

	now := time.Now()
	var documents []dbModels.PersistedDocument
	activated := false
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the status flips first so document uploads racing the activation see it and stop
		ok, err := transition(tx, appDeployment, dbModels.AppDeploymentStatusPending, map[string]any{
			"status":       dbModels.AppDeploymentStatusActive,
			"activated_at": now,
		})
		if err != nil {
			return transient("error activating app deployment", err)
		}
		if !ok {
			return nil
		}

		documents, err = m.documents(tx, appDeployment.ID)
		if err != nil {
			return err
		}
		published := make([]artifacts.Document, 0, len(documents))
		for _, document := range documents {
			published = append(published, artifacts.Document{Hash: document.Hash, Body: document.Body})
		}
		if err := m.publisher.PublishDocuments(ctx, targetID, name, version, published); err != nil {
			m.metrics.ArtifactFailure()
			return transient("error publishing app deployment documents", err)
		}
		activated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !activated {
		current, err := m.findAppDeployment(m.db.WithContext(ctx), targetID, name, version)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return failed(registry.ErrorKindNotFound, notFoundMessage), nil
		}
		if current.Status == dbModels.AppDeploymentStatusActive {
			return &Result{AppDeployment: current, IsSkipped: true}, nil
		}
		return failed(registry.ErrorKindInputValidation, "App deployment is retired"), nil
	}

	appDeployment.Status = dbModels.AppDeploymentStatusActive
	appDeployment.ActivatedAt = &now

	m.metrics.AppDeploymentTransition(string(dbModels.AppDeploymentStatusActive))
	m.log.Info("app deployment activated", "target", targetID, "app", name, "version", version, "documents", len(documents))
	return &Result{AppDeployment: appDeployment}, nil
}

// Retire removes the documents of an active deployment from the artifact store. The deployment
// and its documents stay in the database.
func (m *Manager) Retire(ctx context.Context, targetID uuid.UUID, name string, version string) (*Result, error) {
	if _, result, err := m.target(ctx, targetID); err != nil || result != nil {
		return result, err
	}

	appDeployment, err := m.findAppDeployment(m.db.WithContext(ctx), targetID, name, version)
	if err != nil {
		return nil, err
	}
	if appDeployment == nil {
		return failed(registry.ErrorKindNotFound, notFoundMessage), nil
	}

	now := time.Now()
	retired := false
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := transition(tx, appDeployment, dbModels.AppDeploymentStatusActive, map[string]any{
			"status":     dbModels.AppDeploymentStatusRetired,
			"retired_at": now,
		})
		if err != nil {
			return transient("error retiring app deployment", err)
		}
		if !ok {
			return nil
		}

		documents, err := m.documents(tx, appDeployment.ID)
		if err != nil {
			return err
		}
		hashes := make([]string, 0, len(documents))
		for _, document := range documents {
			hashes = append(hashes, document.Hash)
		}
		if err := m.publisher.RetireDocuments(ctx, targetID, name, version, hashes); err != nil {
			m.metrics.ArtifactFailure()
			return transient("error removing app deployment documents", err)
		}
		retired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !retired {
		return failed(registry.ErrorKindInputValidation, "App deployment is not active"), nil
	}

	appDeployment.Status = dbModels.AppDeploymentStatusRetired
	appDeployment.RetiredAt = &now

	m.metrics.AppDeploymentTransition(string(dbModels.AppDeploymentStatusRetired))
	m.log.Info("app deployment retired", "target", targetID, "app", name, "version", version)
	return &Result{AppDeployment: appDeployment}, nil
}

func (m *Manager) GetAppDeployment(ctx context.Context, targetID uuid.UUID, name string, version string) (*dbModels.AppDeployment, error) {
	return m.findAppDeployment(m.db.WithContext(ctx), targetID, name, version)
}

// GetDocument reads a persisted document the way clients do, from the artifact store.
func (m *Manager) GetDocument(ctx context.Context, targetID uuid.UUID, name string, version string, hash string) ([]byte, error) {
	return m.publisher.Document(ctx, targetID, name, version, hash)
}

func (m *Manager) documents(tx *gorm.DB, appDeploymentID uuid.UUID) ([]dbModels.PersistedDocument, error) {
	var documents []dbModels.PersistedDocument
	if err := tx.Where("app_deployment_id = ?", appDeploymentID).Order("hash").Find(&documents).Error; err != nil {
		return nil, transient("error listing persisted documents", err)
	}
	return documents, nil
}
