package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SchemaVersionAction string

const (
	SchemaVersionActionPush   SchemaVersionAction = "PUSH"
	SchemaVersionActionDelete SchemaVersionAction = "DELETE"
)

type SchemaError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type SchemaChange struct {
	Criticality        string `json:"criticality"`
	Type               string `json:"type"`
	Message            string `json:"message"`
	Path               string `json:"path,omitempty"`
	IsSafeBasedOnUsage bool   `json:"isSafeBasedOnUsage,omitempty"`
}

type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type PolicyWarning struct {
	RuleID  string   `json:"ruleId"`
	Message string   `json:"message"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
}

type ContractResult struct {
	ContractID    uuid.UUID      `json:"contractId"`
	ContractName  string         `json:"contractName"`
	IsComposable  bool           `json:"isComposable"`
	CompositeSDL  string         `json:"compositeSchemaSdl,omitempty"`
	SupergraphSDL string         `json:"supergraphSdl,omitempty"`
	Errors        []SchemaError  `json:"errors,omitempty"`
	Changes       []SchemaChange `json:"changes,omitempty"`

	// Set when the contract failed to compose: the schema still served for it.
	LastComposableSDL           string `json:"lastComposableSchemaSdl,omitempty"`
	LastComposableSupergraphSDL string `json:"lastComposableSupergraphSdl,omitempty"`
}

// Served returns the schema the CDN serves for the contract, if any.
func (c ContractResult) Served() (sdl string, supergraphSDL string) {
	if c.IsComposable {
		return c.CompositeSDL, c.SupergraphSDL
	}
	return c.LastComposableSDL, c.LastComposableSupergraphSDL
}

type ServiceSnapshot struct {
	Name     string         `json:"name"`
	URL      string         `json:"url,omitempty"`
	SDL      string         `json:"sdl"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

// SchemaVersion is a single immutable entry of a target's version log.
type SchemaVersion struct {
	ID                uuid.UUID
	Number            int64
	TargetID          uuid.UUID
	PreviousVersionID *uuid.UUID
	Action            SchemaVersionAction

	Author         string
	Commit         string
	ServiceName    string
	ServiceURL     string
	SDL            string
	DeletedService string

	CompositeSDL  string
	SupergraphSDL string
	IsComposable  bool
	Valid         bool
	Forced        bool

	Errors         datatypes.JSONSlice[SchemaError]
	Changes        datatypes.JSONSlice[SchemaChange]
	PolicyWarnings datatypes.JSONSlice[PolicyWarning]
	PolicyErrors   datatypes.JSONSlice[PolicyWarning]
	Contracts      datatypes.JSONSlice[ContractResult]
	Services       datatypes.JSONSlice[ServiceSnapshot]

	CreatedAt time.Time
}

// SchemaCheck is the read-only record of a check run, kept apart from the version log.
type SchemaCheck struct {
	ID            uuid.UUID
	TargetID      uuid.UUID
	ServiceName   string
	Valid         bool
	SchemaSDL     string
	CompositeSDL  string
	SupergraphSDL string

	Errors    datatypes.JSONSlice[SchemaError]
	Warnings  datatypes.JSONSlice[PolicyWarning]
	Changes   datatypes.JSONSlice[SchemaChange]
	Contracts datatypes.JSONSlice[ContractResult]

	Commit    string
	Author    string
	CreatedAt time.Time
}
