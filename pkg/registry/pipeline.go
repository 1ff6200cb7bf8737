package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/policy"
	"github.com/rmb938/franz-graphql-registry/pkg/schemas"
	"github.com/rmb938/franz-graphql-registry/pkg/usage"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// evaluation is the outcome of composing a candidate service set and comparing it with the
// latest valid version of the target.
type evaluation struct {
	composed  *schemas.ComposedSchema
	errors    []dbModels.SchemaError
	baseline  *dbModels.SchemaVersion
	initial   bool
	changes   []dbModels.SchemaChange
	breaking  []dbModels.SchemaChange
	policy    *policy.Result
	contracts []dbModels.ContractResult
}

func (e *evaluation) composable() bool {
	return e.composed != nil
}

func (e *evaluation) contractErrors() []dbModels.SchemaError {
	var errs []dbModels.SchemaError
	for _, contract := range e.contracts {
		errs = append(errs, contract.Errors...)
	}
	return errs
}

func (r *Registry) evaluate(ctx context.Context, tx *gorm.DB, target *dbModels.Target, services []dbModels.ServiceSnapshot) (*evaluation, error) {
	eval := &evaluation{}

	projectType := target.Project.Type
	started := time.Now()
	composed, compositionErrors := r.composer.Compose(ctx, schemas.ProjectType(projectType), serviceSDLs(services), target.BaseSchema)
	r.metrics.ObserveComposition(string(projectType), started)
	if len(compositionErrors) > 0 {
		eval.errors = schemaErrors(compositionErrors, "")
		return eval, nil
	}
	eval.composed = composed

	baseline, err := dbModels.LatestValidSchemaVersion(tx, target.ID)
	if err != nil {
		return nil, transient("error getting latest valid schema version", err)
	}
	eval.baseline = baseline
	eval.initial = baseline == nil || baseline.CompositeSDL == ""

	if !eval.initial {
		baselineSchema, errs := schemas.LoadSDL(baseline.CompositeSDL)
		if len(errs) > 0 {
			return nil, fmt.Errorf("error loading schema of version %s: %s", baseline.ID, errs[0].Message)
		}
		eval.changes = schemaChanges(schemas.Diff(baselineSchema, composed.Schema))
		eval.breaking, err = r.approveBreakingChanges(ctx, target, eval.changes)
		if err != nil {
			return nil, err
		}
	}

	effective, err := r.effectivePolicy(tx, &target.Project)
	if err != nil {
		return nil, err
	}
	eval.policy, err = r.policies.Evaluate(composed.Schema, effective)
	if err != nil {
		return nil, fmt.Errorf("error evaluating schema policy: %w", err)
	}

	eval.contracts, err = r.composeContracts(tx, target, composed, baseline)
	if err != nil {
		return nil, err
	}

	return eval, nil
}

// approveBreakingChanges marks breaking changes to unused coordinates as safe and returns the
// breaking changes that remain.
func (r *Registry) approveBreakingChanges(ctx context.Context, target *dbModels.Target, changes []dbModels.SchemaChange) ([]dbModels.SchemaChange, error) {
	window := usage.Window{
		PeriodDays:      target.ValidationPeriodDays,
		Percentage:      target.ValidationPercentage,
		ExcludedClients: target.ExcludedClients,
	}

	var breaking []dbModels.SchemaChange
	for i := range changes {
		if changes[i].Criticality != string(schemas.CriticalityBreaking) {
			continue
		}
		if target.ValidationEnabled && r.usage != nil {
			used, err := r.usage.IsCoordinateUsed(ctx, target.ID, changes[i].Path, window)
			if err != nil {
				return nil, transient("error reading coordinate usage", err)
			}
			if !used {
				changes[i].IsSafeBasedOnUsage = true
				continue
			}
		}
		breaking = append(breaking, changes[i])
	}
	return breaking, nil
}

func (r *Registry) composeContracts(tx *gorm.DB, target *dbModels.Target, composed *schemas.ComposedSchema, baseline *dbModels.SchemaVersion) ([]dbModels.ContractResult, error) {
	var contracts []dbModels.Contract
	if err := tx.Where("target_id = ?", target.ID).Order("contract_name").Find(&contracts).Error; err != nil {
		return nil, transient("error listing contracts", err)
	}
	if len(contracts) == 0 {
		return nil, nil
	}

	previous := make(map[string]dbModels.ContractResult)
	if baseline != nil {
		for _, result := range baseline.Contracts {
			previous[result.ContractName] = result
		}
	}

	results := make([]dbModels.ContractResult, len(contracts))
	var group errgroup.Group
	group.SetLimit(r.contractWorkers)
	for i := range contracts {
		i := i
		group.Go(func() error {
			results[i] = composeContract(composed, &contracts[i], previous[contracts[i].ContractName])
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func composeContract(composed *schemas.ComposedSchema, contract *dbModels.Contract, previous dbModels.ContractResult) dbModels.ContractResult {
	result := dbModels.ContractResult{
		ContractID:   contract.ID,
		ContractName: contract.ContractName,
	}

	contractSchema, errs := schemas.ApplyContractFilter(composed, schemas.ContractFilter{
		IncludeTags:            contract.IncludeTags,
		ExcludeTags:            contract.ExcludeTags,
		RemoveUnreachableTypes: contract.RemoveUnreachableTypesFromPublicAPISchema,
	})
	previousSDL, previousSupergraphSDL := previous.Served()
	if len(errs) > 0 {
		result.Errors = schemaErrors(errs, contract.ContractName)
		result.LastComposableSDL = previousSDL
		result.LastComposableSupergraphSDL = previousSupergraphSDL
		return result
	}

	result.IsComposable = true
	result.CompositeSDL = contractSchema.SDL
	result.SupergraphSDL = contractSchema.SupergraphSDL

	if previousSDL != "" {
		if previousSchema, errs := schemas.LoadSDL(previousSDL); len(errs) == 0 {
			result.Changes = schemaChanges(schemas.Diff(previousSchema, contractSchema.Schema))
		}
	}
	return result
}

func (r *Registry) effectivePolicy(tx *gorm.DB, project *dbModels.Project) (*policy.Policy, error) {
	organizationPolicy, err := getSchemaPolicy(tx, dbModels.PolicyResourceTypeOrganization, project.OrganizationID)
	if err != nil {
		return nil, err
	}
	projectPolicy, err := getSchemaPolicy(tx, dbModels.PolicyResourceTypeProject, project.ID)
	if err != nil {
		return nil, err
	}
	return policy.Merge(toPolicy(organizationPolicy), toPolicy(projectPolicy)), nil
}

func getSchemaPolicy(tx *gorm.DB, resourceType dbModels.PolicyResourceType, resourceID uuid.UUID) (*dbModels.SchemaPolicy, error) {
	schemaPolicy := &dbModels.SchemaPolicy{}
	err := tx.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).First(schemaPolicy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transient("error getting schema policy", err)
	}
	return schemaPolicy, nil
}

func toPolicy(schemaPolicy *dbModels.SchemaPolicy) *policy.Policy {
	if schemaPolicy == nil {
		return nil
	}
	p := &policy.Policy{AllowOverrides: schemaPolicy.AllowOverrides}
	for _, rule := range schemaPolicy.Rules {
		p.Rules = append(p.Rules, policy.RuleInstance{
			RuleID:        rule.RuleID,
			Severity:      policy.Severity(rule.Severity),
			Configuration: json.RawMessage(rule.Configuration),
		})
	}
	return p
}

func serviceSDLs(services []dbModels.ServiceSnapshot) []schemas.ServiceSDL {
	out := make([]schemas.ServiceSDL, 0, len(services))
	for _, service := range services {
		out = append(out, schemas.ServiceSDL{Name: service.Name, URL: service.URL, SDL: service.SDL})
	}
	return out
}

func schemaErrors(errs []schemas.CompositionError, contractName string) []dbModels.SchemaError {
	out := make([]dbModels.SchemaError, 0, len(errs))
	for _, err := range errs {
		message := err.Message
		if contractName != "" {
			message = fmt.Sprintf("[%s] %s", contractName, message)
		}
		out = append(out, dbModels.SchemaError{Message: message, Path: err.Path})
	}
	return out
}

func schemaChanges(changes []schemas.Change) []dbModels.SchemaChange {
	schemas.SortChanges(changes)
	out := make([]dbModels.SchemaChange, 0, len(changes))
	for _, change := range changes {
		out = append(out, dbModels.SchemaChange{
			Criticality: string(change.Criticality),
			Type:        string(change.Type),
			Message:     change.Message,
			Path:        change.Path,
		})
	}
	return out
}

func policyWarnings(warnings []policy.Warning) []dbModels.PolicyWarning {
	out := make([]dbModels.PolicyWarning, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, dbModels.PolicyWarning{
			RuleID:  warning.RuleID,
			Message: warning.Message,
			Start:   dbModels.Position{Line: warning.Start.Line, Column: warning.Start.Column},
			End:     dbModels.Position{Line: warning.End.Line, Column: warning.End.Column},
		})
	}
	return out
}

// currentServices returns the accepted service set of a target ordered by name.
func currentServices(tx *gorm.DB, targetID uuid.UUID) ([]dbModels.ServiceSnapshot, error) {
	var services []dbModels.Service
	if err := tx.Where("target_id = ?", targetID).Order("name").Find(&services).Error; err != nil {
		return nil, transient("error listing services", err)
	}

	snapshots := make([]dbModels.ServiceSnapshot, 0, len(services))
	for _, service := range services {
		snapshots = append(snapshots, dbModels.ServiceSnapshot{
			Name:     service.Name,
			URL:      service.URL,
			SDL:      service.SDL,
			Metadata: service.Metadata,
		})
	}
	return snapshots, nil
}

func findService(services []dbModels.ServiceSnapshot, name string) *dbModels.ServiceSnapshot {
	for i := range services {
		if services[i].Name == name {
			return &services[i]
		}
	}
	return nil
}

// replaceService returns a copy of services with the named service replaced or added.
func replaceService(services []dbModels.ServiceSnapshot, service dbModels.ServiceSnapshot) []dbModels.ServiceSnapshot {
	out := make([]dbModels.ServiceSnapshot, 0, len(services)+1)
	for _, existing := range services {
		if existing.Name != service.Name {
			out = append(out, existing)
		}
	}
	out = append(out, service)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func removeService(services []dbModels.ServiceSnapshot, name string) []dbModels.ServiceSnapshot {
	out := make([]dbModels.ServiceSnapshot, 0, len(services))
	for _, existing := range services {
		if existing.Name != name {
			out = append(out, existing)
		}
	}
	return out
}

func sameServices(a []dbModels.ServiceSnapshot, b []dbModels.ServiceSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].URL != b[i].URL || a[i].SDL != b[i].SDL {
			return false
		}
	}
	return true
}
