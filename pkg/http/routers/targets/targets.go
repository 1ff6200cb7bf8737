package targets

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
)

const defaultVersionsLimit = 50

var errInvalidLimit = fmt.Errorf("limit must be a positive number")

func publishSchema(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, data *RequestPublishSchema) (*registry.PublishResult, error) {
	result, err := schemaRegistry.Publish(ctx, registry.PublishInput{
		TargetID:    targetID,
		ServiceName: data.ServiceName,
		URL:         data.URL,
		SDL:         data.SDL,
		Metadata:    data.Metadata,
		Author:      data.Author,
		Commit:      data.Commit,
		Force:       data.Force,
		DryRun:      data.DryRun,
	})
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, result)
	}
	return result, nil
}

func checkSchema(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, data *RequestCheckSchema) (*registry.CheckResult, error) {
	result, err := schemaRegistry.CheckSchema(ctx, registry.CheckInput{
		TargetID:    targetID,
		ServiceName: data.ServiceName,
		SDL:         data.SDL,
		Author:      data.Author,
		Commit:      data.Commit,
		ForceSafe:   data.ForceSafe,
	})
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, result)
	}
	return result, nil
}

func getSchemaCheck(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, checkID uuid.UUID) (*dbModels.SchemaCheck, error) {
	check, err := schemaRegistry.GetSchemaCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check == nil || check.TargetID != targetID {
		return nil, routers.NewAPIError(http.StatusNotFound, 40402, fmt.Errorf("schema check not found"))
	}
	return check, nil
}

func deleteService(ctx context.Context, schemaRegistry *registry.Registry, input registry.DeleteServiceInput) (*registry.PublishResult, error) {
	result, err := schemaRegistry.DeleteService(ctx, input)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, result)
	}
	return result, nil
}

func getVersion(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, versionID uuid.UUID) (*dbModels.SchemaVersion, error) {
	version, err := schemaRegistry.GetVersion(ctx, targetID, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, routers.NewAPIError(http.StatusNotFound, 40402, fmt.Errorf("version not found"))
	}
	return version, nil
}

func syncCDN(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID) (*registry.SyncResult, error) {
	result, err := schemaRegistry.SyncCDN(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return result, nil
}

func createContract(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, data *RequestCreateContract) (*dbModels.Contract, error) {
	result, err := schemaRegistry.CreateContract(ctx, registry.CreateContractInput{
		TargetID:               targetID,
		ContractName:           data.ContractName,
		IncludeTags:            data.IncludeTags,
		ExcludeTags:            data.ExcludeTags,
		RemoveUnreachableTypes: data.RemoveUnreachableTypes,
	})
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return result.Contract, nil
}

func disableContract(ctx context.Context, schemaRegistry *registry.Registry, targetID uuid.UUID, contractID uuid.UUID) (*dbModels.Contract, error) {
	contracts, err := schemaRegistry.ListContracts(ctx, targetID, false)
	if err != nil {
		return nil, err
	}
	found := false
	for _, contract := range contracts {
		if contract.ID == contractID {
			found = true
			break
		}
	}
	if !found {
		return nil, routers.NewAPIError(http.StatusNotFound, 40401, fmt.Errorf("contract not found"))
	}

	result, err := schemaRegistry.DisableContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return result.Contract, nil
}
