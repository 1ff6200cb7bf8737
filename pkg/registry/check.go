package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"gorm.io/gorm"
)

type CheckInput struct {
	TargetID    uuid.UUID
	ServiceName string
	SDL         string
	Author      string
	Commit      string
	// ForceSafe lets a check with breaking changes pass.
	ForceSafe bool
}

// CheckSchema runs the publish pipeline without touching the version log or the artifacts.
// The outcome is stored as a schema check.
func (r *Registry) CheckSchema(ctx context.Context, input CheckInput) (*CheckResult, error) {
	target, failure, err := r.getTarget(input.TargetID)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return &CheckResult{Failure: failure}, nil
	}

	if strings.TrimSpace(input.SDL) == "" {
		return &CheckResult{Failure: newFailure(ErrorKindInputValidation, "SDL must not be empty")}, nil
	}

	composite := target.Project.Type.IsComposite()
	serviceName := strings.ToLower(strings.TrimSpace(input.ServiceName))
	if composite && serviceName == "" {
		return &CheckResult{Failure: newFailure(ErrorKindMissingServiceName, "Service name is required for %s projects", strings.ToLower(string(target.Project.Type)))}, nil
	}

	var candidate []dbModels.ServiceSnapshot
	if composite {
		current, err := currentServices(r.db, target.ID)
		if err != nil {
			return nil, err
		}
		url := ""
		if existing := findService(current, serviceName); existing != nil {
			url = existing.URL
		}
		candidate = replaceService(current, dbModels.ServiceSnapshot{Name: serviceName, URL: url, SDL: input.SDL})
	} else {
		candidate = []dbModels.ServiceSnapshot{{SDL: input.SDL}}
	}

	eval, err := r.evaluate(ctx, r.db, target, candidate)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
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

	switch {
	case !eval.composable():
		result.Failure = &Failure{Kind: ErrorKindComposition, Message: "Schema composition failed", Errors: eval.errors}
	case len(eval.breaking) > 0 && !input.ForceSafe:
		result.Failure = breakingFailure(eval.breaking)
	case len(result.PolicyErrors) > 0:
		result.Failure = &Failure{Kind: ErrorKindPolicy, Message: "Schema policy check failed", Policy: result.PolicyErrors}
	case len(eval.contractErrors()) > 0:
		result.Failure = &Failure{Kind: ErrorKindComposition, Message: "Contract composition failed", Errors: eval.contractErrors()}
	}
	result.Valid = result.Failure == nil

	check := &dbModels.SchemaCheck{
		ID:          uuid.New(),
		TargetID:    target.ID,
		ServiceName: serviceName,
		Valid:       result.Valid,
		SchemaSDL:   input.SDL,
		Errors:      append(append([]dbModels.SchemaError{}, eval.errors...), eval.contractErrors()...),
		Warnings:    append(append([]dbModels.PolicyWarning{}, result.PolicyWarnings...), result.PolicyErrors...),
		Changes:     result.Changes,
		Contracts:   eval.contracts,
		Commit:      input.Commit,
		Author:      input.Author,
	}
	if eval.composable() {
		check.CompositeSDL = eval.composed.SDL
		check.SupergraphSDL = eval.composed.SupergraphSDL
	}
	if err := r.db.Create(check).Error; err != nil {
		return nil, transient("error creating schema check", err)
	}
	result.Check = check

	r.metrics.ObserveCheck(string(target.Project.Type), result.Valid)
	r.log.V(1).Info("schema check", "target", target.ID, "service", serviceName, "valid", result.Valid)

	return result, nil
}

func (r *Registry) GetSchemaCheck(ctx context.Context, checkID uuid.UUID) (*dbModels.SchemaCheck, error) {
	check := &dbModels.SchemaCheck{}
	err := r.db.WithContext(ctx).Where("id = ?", checkID).First(check).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transient("error getting schema check", err)
	}
	return check, nil
}
