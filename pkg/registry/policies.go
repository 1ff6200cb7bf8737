package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/policy"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PolicyMutationResult struct {
	Policy  *policy.Policy `json:"policy,omitempty"`
	Failure *Failure       `json:"failure,omitempty"`
}

// SchemaPolicies are the stored policies of a project and the rules that apply to it.
type SchemaPolicies struct {
	Organization *policy.Policy `json:"organization,omitempty"`
	Project      *policy.Policy `json:"project,omitempty"`
	Merged       *policy.Policy `json:"merged,omitempty"`
}

func (r *Registry) validatePolicy(rules []policy.RuleInstance) *Failure {
	if err := r.policies.Validate(rules); err != nil {
		configErr := &policy.ConfigurationError{}
		if errors.As(err, &configErr) {
			return newFailure(ErrorKindInputValidation, "%s", configErr.Message)
		}
		return newFailure(ErrorKindInputValidation, "%s", err.Error())
	}
	return nil
}

func (r *Registry) UpdateSchemaPolicyForOrganization(ctx context.Context, organizationID uuid.UUID, allowOverrides bool, rules []policy.RuleInstance) (*PolicyMutationResult, error) {
	if failure := r.validatePolicy(rules); failure != nil {
		return &PolicyMutationResult{Failure: failure}, nil
	}

	organization := &dbModels.Organization{}
	if err := r.db.WithContext(ctx).Where("id = ?", organizationID).First(organization).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PolicyMutationResult{Failure: newFailure(ErrorKindNotFound, "Organization not found")}, nil
		}
		return nil, transient("error getting organization", err)
	}

	if err := r.savePolicy(ctx, dbModels.PolicyResourceTypeOrganization, organization.ID, allowOverrides, rules); err != nil {
		return nil, err
	}

	r.log.Info("updated organization schema policy", "organization", organization.ID, "rules", len(rules), "allowOverrides", allowOverrides)
	return &PolicyMutationResult{Policy: &policy.Policy{AllowOverrides: allowOverrides, Rules: rules}}, nil
}

// UpdateSchemaPolicyForProject stores the project policy. It is rejected while the organization
// policy forbids overrides.
func (r *Registry) UpdateSchemaPolicyForProject(ctx context.Context, projectID uuid.UUID, rules []policy.RuleInstance) (*PolicyMutationResult, error) {
	if failure := r.validatePolicy(rules); failure != nil {
		return &PolicyMutationResult{Failure: failure}, nil
	}

	project := &dbModels.Project{}
	if err := r.db.WithContext(ctx).Where("id = ?", projectID).First(project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PolicyMutationResult{Failure: newFailure(ErrorKindNotFound, "Project not found")}, nil
		}
		return nil, transient("error getting project", err)
	}

	organizationPolicy, err := getSchemaPolicy(r.db.WithContext(ctx), dbModels.PolicyResourceTypeOrganization, project.OrganizationID)
	if err != nil {
		return nil, err
	}
	if organizationPolicy != nil && !organizationPolicy.AllowOverrides {
		return &PolicyMutationResult{Failure: newFailure(ErrorKindInputValidation, "Organization schema policy does not allow project level overrides")}, nil
	}

	if err := r.savePolicy(ctx, dbModels.PolicyResourceTypeProject, project.ID, false, rules); err != nil {
		return nil, err
	}

	r.log.Info("updated project schema policy", "project", project.ID, "rules", len(rules))
	return &PolicyMutationResult{Policy: &policy.Policy{Rules: rules}}, nil
}

func (r *Registry) savePolicy(ctx context.Context, resourceType dbModels.PolicyResourceType, resourceID uuid.UUID, allowOverrides bool, rules []policy.RuleInstance) error {
	instances := make([]dbModels.PolicyRuleInstance, 0, len(rules))
	for _, rule := range rules {
		instances = append(instances, dbModels.PolicyRuleInstance{
			RuleID:        rule.RuleID,
			Severity:      string(rule.Severity),
			Configuration: datatypes.JSON(rawConfiguration(rule.Configuration)),
		})
	}

	schemaPolicy := &dbModels.SchemaPolicy{
		ID:             uuid.New(),
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		AllowOverrides: allowOverrides,
		Rules:          instances,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_type"}, {Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allow_overrides", "rules", "updated_at"}),
	}).Create(schemaPolicy).Error
	if err != nil {
		return transient("error saving schema policy", err)
	}
	return nil
}

func (r *Registry) GetSchemaPolicies(ctx context.Context, projectID uuid.UUID) (*SchemaPolicies, *Failure, error) {
	project := &dbModels.Project{}
	if err := r.db.WithContext(ctx).Where("id = ?", projectID).First(project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newFailure(ErrorKindNotFound, "Project not found"), nil
		}
		return nil, nil, transient("error getting project", err)
	}

	tx := r.db.WithContext(ctx)
	organizationPolicy, err := getSchemaPolicy(tx, dbModels.PolicyResourceTypeOrganization, project.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	projectPolicy, err := getSchemaPolicy(tx, dbModels.PolicyResourceTypeProject, project.ID)
	if err != nil {
		return nil, nil, err
	}

	policies := &SchemaPolicies{
		Organization: toPolicy(organizationPolicy),
		Project:      toPolicy(projectPolicy),
	}
	policies.Merged = policy.Merge(policies.Organization, policies.Project)
	return policies, nil, nil
}

// rawConfiguration keeps empty configurations out of the stored rules.
func rawConfiguration(config json.RawMessage) json.RawMessage {
	if len(config) == 0 {
		return nil
	}
	return config
}
