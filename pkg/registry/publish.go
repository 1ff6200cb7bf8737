package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const noChangesMessage = "No changes. Skipping."

type PublishInput struct {
	TargetID    uuid.UUID
	ServiceName string
	URL         string
	SDL         string
	Metadata    json.RawMessage
	Author      string
	Commit      string
	Force       bool
	DryRun      bool
}

type DeleteServiceInput struct {
	TargetID    uuid.UUID
	ServiceName string
	Author      string
	Commit      string
	DryRun      bool
}

func (r *Registry) getTarget(targetID uuid.UUID) (*dbModels.Target, *Failure, error) {
	target, err := dbModels.GetTarget(r.db, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newFailure(ErrorKindNotFound, "Target not found"), nil
		}
		return nil, nil, transient("error getting target", err)
	}
	return target, nil, nil
}

func rejected(failure *Failure) *PublishResult {
	return &PublishResult{Outcome: PublishOutcomeRejected, Failure: failure}
}

// Publish records a new schema version for the target. Composition failures and unapproved
// breaking changes are recorded as invalid versions.
func (r *Registry) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	unlock := r.locks.lock(input.TargetID)
	defer unlock()

	target, failure, err := r.getTarget(input.TargetID)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return rejected(failure), nil
	}

	if strings.TrimSpace(input.SDL) == "" {
		return rejected(newFailure(ErrorKindInputValidation, "SDL must not be empty")), nil
	}

	composite := target.Project.Type.IsComposite()
	serviceName := strings.ToLower(strings.TrimSpace(input.ServiceName))
	if composite && serviceName == "" {
		return rejected(newFailure(ErrorKindMissingServiceName, "Service name is required for %s projects", strings.ToLower(string(target.Project.Type)))), nil
	}

	var result *PublishResult
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := dbModels.LatestSchemaVersion(tx, target.ID)
		if err != nil {
			return transient("error getting latest schema version", err)
		}

		var messages []string
		var candidate []dbModels.ServiceSnapshot
		url := strings.TrimSpace(input.URL)
		if composite {
			current, err := currentServices(tx, target.ID)
			if err != nil {
				return err
			}
			existing := findService(current, serviceName)
			if url == "" {
				if existing == nil {
					result = rejected(newFailure(ErrorKindMissingURL, "URL is required for new service %q", serviceName))
					return nil
				}
				url = existing.URL
			}
			if existing != nil && existing.URL != url {
				messages = append(messages, fmt.Sprintf("Updated url of service %q", serviceName))
			}
			candidate = replaceService(current, dbModels.ServiceSnapshot{
				Name:     serviceName,
				URL:      url,
				SDL:      input.SDL,
				Metadata: datatypes.JSON(input.Metadata),
			})
		} else {
			candidate = []dbModels.ServiceSnapshot{{SDL: input.SDL, Metadata: datatypes.JSON(input.Metadata)}}
		}

		eval, err := r.evaluate(ctx, tx, target, candidate)
		if err != nil {
			return err
		}

		if latest != nil && latest.Valid && eval.composable() &&
			latest.CompositeSDL == eval.composed.SDL && sameServices(latest.Services, candidate) {
			result = &PublishResult{
				Outcome:  PublishOutcomeIgnored,
				Valid:    true,
				Version:  latest,
				Messages: []string{noChangesMessage},
				Changes:  []dbModels.SchemaChange{},
			}
			return nil
		}

		version := &dbModels.SchemaVersion{
			ID:          uuid.New(),
			TargetID:    target.ID,
			Action:      dbModels.SchemaVersionActionPush,
			Author:      input.Author,
			Commit:      input.Commit,
			ServiceName: serviceName,
			ServiceURL:  url,
			SDL:         input.SDL,
			Services:    candidate,
		}
		result = r.decide(eval, version, input.Force)
		result.Messages = append(messages, result.Messages...)
		result.DryRun = input.DryRun

		if input.DryRun {
			return nil
		}
		if err := r.appendVersion(tx, latest, version); err != nil {
			return err
		}

		if version.Valid && composite {
			service := &dbModels.Service{
				ID:       uuid.New(),
				TargetID: target.ID,
				Name:     serviceName,
				URL:      url,
				SDL:      input.SDL,
				Metadata: datatypes.JSON(input.Metadata),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "target_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"url", "sdl", "metadata", "updated_at"}),
			}).Create(service).Error
			if err != nil {
				return transient("error saving service", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.ObservePublish(string(target.Project.Type), string(result.Outcome))
	r.log.Info("schema publish", "target", target.ID, "service", serviceName, "outcome", result.Outcome, "dryRun", input.DryRun)

	if result.Outcome == PublishOutcomePublished && !input.DryRun {
		if err := r.publishArtifacts(ctx, result.Version); err != nil {
			return result, err
		}
	}

	return result, nil
}

// decide fills the validity of a version from its evaluation.
func (r *Registry) decide(eval *evaluation, version *dbModels.SchemaVersion, force bool) *PublishResult {
	result := &PublishResult{
		Initial:   eval.initial,
		Changes:   eval.changes,
		Errors:    eval.errors,
		Contracts: eval.contracts,
	}
	if result.Changes == nil {
		result.Changes = []dbModels.SchemaChange{}
	}
	if eval.policy != nil {
		result.PolicyWarnings = policyWarnings(eval.policy.Warnings)
		result.PolicyErrors = policyWarnings(eval.policy.Errors)
	}

	version.Errors = eval.errors
	version.Changes = eval.changes
	version.PolicyWarnings = result.PolicyWarnings
	version.PolicyErrors = result.PolicyErrors
	version.Contracts = eval.contracts
	if eval.composable() {
		version.IsComposable = true
		version.CompositeSDL = eval.composed.SDL
		version.SupergraphSDL = eval.composed.SupergraphSDL
	}

	switch {
	case !eval.composable():
		result.Failure = &Failure{Kind: ErrorKindComposition, Message: "Schema composition failed", Errors: eval.errors}
	case eval.initial:
		version.Valid = true
	case len(eval.breaking) > 0 && !force:
		result.Failure = breakingFailure(eval.breaking)
	case len(eval.breaking) > 0:
		version.Valid = true
		version.Forced = true
		result.Messages = append(result.Messages, fmt.Sprintf("Schema published with %d breaking change(s) because the publish was forced", len(eval.breaking)))
	default:
		version.Valid = true
	}

	result.Valid = version.Valid
	result.Version = version
	result.Outcome = PublishOutcomeRejected
	if version.Valid {
		result.Outcome = PublishOutcomePublished
	}
	return result
}

func breakingFailure(breaking []dbModels.SchemaChange) *Failure {
	paths := make([]string, 0, len(breaking))
	for _, change := range breaking {
		paths = append(paths, change.Path)
	}
	return &Failure{
		Kind:    ErrorKindValidation,
		Message: fmt.Sprintf("Detected %d breaking change(s): %s", len(breaking), strings.Join(paths, ", ")),
		Changes: breaking,
	}
}

// appendVersion numbers the version and links it to the previous one. The unique previous
// version id makes a concurrent append from another process fail instead of forking the log.
func (r *Registry) appendVersion(tx *gorm.DB, latest *dbModels.SchemaVersion, version *dbModels.SchemaVersion) error {
	// tx because sqlite doesn't allow multiple write transactions at once
	number, err := dbModels.NextSequenceID(tx, dbModels.SchemaVersionSequence(version.TargetID))
	if err != nil {
		return transient("error getting next version number", err)
	}
	version.Number = number
	if latest != nil {
		version.PreviousVersionID = &latest.ID
	}

	if err := tx.Create(version).Error; err != nil {
		return transient("error creating schema version", err)
	}
	return nil
}

// DeleteService removes a service from a composite target and records the result as a new
// version. Breaking changes caused by the removal are reported but do not block it.
func (r *Registry) DeleteService(ctx context.Context, input DeleteServiceInput) (*PublishResult, error) {
	unlock := r.locks.lock(input.TargetID)
	defer unlock()

	target, failure, err := r.getTarget(input.TargetID)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return rejected(failure), nil
	}
	if !target.Project.Type.IsComposite() {
		return rejected(newFailure(ErrorKindInputValidation, "Services can only be deleted from composite projects")), nil
	}

	serviceName := strings.ToLower(strings.TrimSpace(input.ServiceName))
	if serviceName == "" {
		return rejected(newFailure(ErrorKindMissingServiceName, "Service name is required")), nil
	}

	var result *PublishResult
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := currentServices(tx, target.ID)
		if err != nil {
			return err
		}
		if findService(current, serviceName) == nil {
			result = rejected(newFailure(ErrorKindNotFound, "Service %q not found", serviceName))
			return nil
		}
		if len(current) == 1 {
			result = rejected(newFailure(ErrorKindInputValidation, "Cannot delete the last service of a target"))
			return nil
		}

		latest, err := dbModels.LatestSchemaVersion(tx, target.ID)
		if err != nil {
			return transient("error getting latest schema version", err)
		}

		remaining := removeService(current, serviceName)
		eval, err := r.evaluate(ctx, tx, target, remaining)
		if err != nil {
			return err
		}

		version := &dbModels.SchemaVersion{
			ID:             uuid.New(),
			TargetID:       target.ID,
			Action:         dbModels.SchemaVersionActionDelete,
			Author:         input.Author,
			Commit:         input.Commit,
			DeletedService: serviceName,
			Services:       remaining,
		}
		result = r.decide(eval, version, true)
		if version.Forced {
			version.Forced = false
			result.Messages = nil
		}
		result.Messages = append(result.Messages, fmt.Sprintf("Service %q deleted", serviceName))
		result.DryRun = input.DryRun

		if input.DryRun {
			return nil
		}
		if err := r.appendVersion(tx, latest, version); err != nil {
			return err
		}
		if version.Valid {
			if err := tx.Where("target_id = ? AND name = ?", target.ID, serviceName).Delete(&dbModels.Service{}).Error; err != nil {
				return transient("error deleting service", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("schema service delete", "target", target.ID, "service", serviceName, "outcome", result.Outcome, "dryRun", input.DryRun)

	if result.Outcome == PublishOutcomePublished && !input.DryRun {
		if err := r.publishArtifacts(ctx, result.Version); err != nil {
			return result, err
		}
	}

	return result, nil
}

// SyncCDN republishes the artifacts of the latest valid version. It is safe to call any number
// of times.
func (r *Registry) SyncCDN(ctx context.Context, targetID uuid.UUID) (*SyncResult, error) {
	unlock := r.locks.lock(targetID)
	defer unlock()

	version, err := dbModels.LatestValidSchemaVersion(r.db, targetID)
	if err != nil {
		return nil, transient("error getting latest valid schema version", err)
	}
	if version == nil {
		return &SyncResult{Failure: newFailure(ErrorKindNotFound, "No valid schema version found")}, nil
	}

	if err := r.publishArtifacts(ctx, version); err != nil {
		return nil, err
	}
	return &SyncResult{Version: version}, nil
}

func (r *Registry) publishArtifacts(ctx context.Context, version *dbModels.SchemaVersion) error {
	snapshot := &artifacts.Snapshot{
		TargetID:      version.TargetID,
		VersionID:     version.ID,
		VersionNumber: version.Number,
		SDL:           version.CompositeSDL,
		SupergraphSDL: version.SupergraphSDL,
		Contracts:     make(map[string]artifacts.ContractSnapshot),
	}

	var metadata []json.RawMessage
	for _, service := range version.Services {
		snapshot.Services = append(snapshot.Services, artifacts.Service{Name: service.Name, URL: service.URL, SDL: service.SDL})
		if len(service.Metadata) > 0 {
			metadata = append(metadata, json.RawMessage(service.Metadata))
		}
	}
	switch {
	case len(metadata) == 1 && len(version.Services) == 1 && version.Services[0].Name == "":
		snapshot.Metadata = metadata[0]
	case len(metadata) > 0:
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("error marshalling metadata artifact: %w", err)
		}
		snapshot.Metadata = data
	}

	for _, contract := range version.Contracts {
		if sdl, supergraphSDL := contract.Served(); sdl != "" {
			snapshot.Contracts[contract.ContractName] = artifacts.ContractSnapshot{SDL: sdl, SupergraphSDL: supergraphSDL}
		}
	}

	if err := r.publisher.PublishSchema(ctx, snapshot); err != nil {
		r.metrics.ArtifactFailure()
		r.log.Error(err, "error publishing artifacts, run sync-cdn to recover", "target", version.TargetID, "version", version.ID)
		return transient("error publishing artifacts", err)
	}
	return nil
}
