package registry

import (
	"fmt"

	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
)

type ErrorKind string

const (
	ErrorKindInputValidation    ErrorKind = "INPUT_VALIDATION"
	ErrorKindMissingServiceName ErrorKind = "MISSING_SERVICE_NAME"
	ErrorKindMissingURL         ErrorKind = "MISSING_URL"
	ErrorKindComposition        ErrorKind = "COMPOSITION_FAILURE"
	ErrorKindValidation         ErrorKind = "VALIDATION_FAILURE"
	ErrorKindPolicy             ErrorKind = "POLICY_FAILURE"
	ErrorKindNotFound           ErrorKind = "NOT_FOUND"
	ErrorKindConflict           ErrorKind = "CONFLICT"
)

// Failure is an expected business failure. It is returned as part of a result, never as an error.
type Failure struct {
	Kind    ErrorKind                `json:"kind"`
	Message string                   `json:"message"`
	Errors  []dbModels.SchemaError   `json:"errors,omitempty"`
	Changes []dbModels.SchemaChange  `json:"changes,omitempty"`
	Policy  []dbModels.PolicyWarning `json:"policy,omitempty"`
}

func (f *Failure) Error() string {
	return f.Message
}

func newFailure(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// TransientError wraps infrastructure faults, the database or the artifact store being
// unavailable. Operations failing with it may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

type PublishOutcome string

const (
	PublishOutcomePublished PublishOutcome = "PUBLISHED"
	PublishOutcomeIgnored   PublishOutcome = "IGNORED"
	PublishOutcomeRejected  PublishOutcome = "REJECTED"
)

type PublishResult struct {
	Outcome        PublishOutcome            `json:"outcome"`
	Initial        bool                      `json:"initial"`
	Valid          bool                      `json:"valid"`
	DryRun         bool                      `json:"dryRun,omitempty"`
	Messages       []string                  `json:"messages,omitempty"`
	Version        *dbModels.SchemaVersion   `json:"version,omitempty"`
	Changes        []dbModels.SchemaChange   `json:"changes"`
	Errors         []dbModels.SchemaError    `json:"errors,omitempty"`
	PolicyWarnings []dbModels.PolicyWarning  `json:"policyWarnings,omitempty"`
	PolicyErrors   []dbModels.PolicyWarning  `json:"policyErrors,omitempty"`
	Contracts      []dbModels.ContractResult `json:"contracts,omitempty"`
	Failure        *Failure                  `json:"failure,omitempty"`
}

type CheckResult struct {
	Valid          bool                      `json:"valid"`
	Initial        bool                      `json:"initial"`
	Check          *dbModels.SchemaCheck     `json:"check,omitempty"`
	Changes        []dbModels.SchemaChange   `json:"changes"`
	Errors         []dbModels.SchemaError    `json:"errors,omitempty"`
	PolicyWarnings []dbModels.PolicyWarning  `json:"policyWarnings,omitempty"`
	PolicyErrors   []dbModels.PolicyWarning  `json:"policyErrors,omitempty"`
	Contracts      []dbModels.ContractResult `json:"contracts,omitempty"`
	Failure        *Failure                  `json:"failure,omitempty"`
}

type SyncResult struct {
	Version *dbModels.SchemaVersion `json:"version,omitempty"`
	Failure *Failure                `json:"failure,omitempty"`
}
