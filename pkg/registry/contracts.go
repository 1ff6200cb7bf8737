package registry

import (
	"context"
	"errors"
	"regexp"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"gorm.io/gorm"
)

var contractNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,64}$`)

type CreateContractInput struct {
	TargetID               uuid.UUID
	ContractName           string
	IncludeTags            []string
	ExcludeTags            []string
	RemoveUnreachableTypes bool
}

type ContractMutationResult struct {
	Contract *dbModels.Contract `json:"contract,omitempty"`
	Failure  *Failure           `json:"failure,omitempty"`
}

func validateContractInput(input CreateContractInput) *Failure {
	if !contractNameRegex.MatchString(input.ContractName) {
		return newFailure(ErrorKindInputValidation, "Contract name must be 2 to 64 characters long and contain only letters, digits, dashes and underscores")
	}
	if len(input.IncludeTags) == 0 && len(input.ExcludeTags) == 0 {
		return newFailure(ErrorKindInputValidation, "Provide at least one value for either include tags or exclude tags")
	}
	for _, tag := range input.IncludeTags {
		for _, excluded := range input.ExcludeTags {
			if tag == excluded {
				return newFailure(ErrorKindInputValidation, "Tag %q can not be both included and excluded", tag)
			}
		}
	}
	return nil
}

func (r *Registry) CreateContract(ctx context.Context, input CreateContractInput) (*ContractMutationResult, error) {
	if failure := validateContractInput(input); failure != nil {
		return &ContractMutationResult{Failure: failure}, nil
	}

	target, failure, err := r.getTarget(input.TargetID)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return &ContractMutationResult{Failure: failure}, nil
	}
	if target.Project.Type != dbModels.ProjectTypeFederation {
		return &ContractMutationResult{Failure: newFailure(ErrorKindInputValidation, "Contracts are only supported for federation projects")}, nil
	}

	var result *ContractMutationResult
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := &dbModels.Contract{}
		err := tx.Unscoped().Where("target_id = ? AND contract_name = ?", target.ID, input.ContractName).First(existing).Error
		if err == nil {
			result = &ContractMutationResult{Failure: newFailure(ErrorKindConflict, "Contract %q already exists on this target", input.ContractName)}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return transient("error getting contract", err)
		}

		contract := &dbModels.Contract{
			ID:           uuid.New(),
			TargetID:     target.ID,
			ContractName: input.ContractName,
			IncludeTags:  input.IncludeTags,
			ExcludeTags:  input.ExcludeTags,
			RemoveUnreachableTypesFromPublicAPISchema: input.RemoveUnreachableTypes,
		}
		if err := tx.Create(contract).Error; err != nil {
			return transient("error creating contract", err)
		}
		result = &ContractMutationResult{Contract: contract}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Contract != nil {
		r.log.Info("created contract", "target", target.ID, "contract", result.Contract.ContractName)
	}
	return result, nil
}

// DisableContract stops a contract from being composed. The row is kept.
func (r *Registry) DisableContract(ctx context.Context, contractID uuid.UUID) (*ContractMutationResult, error) {
	contract := &dbModels.Contract{}
	err := r.db.WithContext(ctx).Where("id = ?", contractID).First(contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ContractMutationResult{Failure: newFailure(ErrorKindNotFound, "Contract not found")}, nil
		}
		return nil, transient("error getting contract", err)
	}

	if err := r.db.WithContext(ctx).Delete(contract).Error; err != nil {
		return nil, transient("error disabling contract", err)
	}

	r.log.Info("disabled contract", "target", contract.TargetID, "contract", contract.ContractName)
	return &ContractMutationResult{Contract: contract}, nil
}

func (r *Registry) ListContracts(ctx context.Context, targetID uuid.UUID, includeDisabled bool) ([]dbModels.Contract, error) {
	query := r.db.WithContext(ctx)
	if includeDisabled {
		query = query.Unscoped()
	}

	var contracts []dbModels.Contract
	if err := query.Where("target_id = ?", targetID).Order("contract_name").Find(&contracts).Error; err != nil {
		return nil, transient("error listing contracts", err)
	}
	return contracts, nil
}
