package routers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
)

type APIError struct {
	httpStatusCode int
	ErrorCode      int    `json:"error_code"`
	Message        string `json:"message"`
	Details        any    `json:"details,omitempty"`
	err            error
}

func NewAPIError(httpStatusCode int, registryErrorCode int, err error) *APIError {
	return &APIError{
		httpStatusCode: httpStatusCode,
		ErrorCode:      registryErrorCode,
		Message:        err.Error(),
		err:            err,
	}
}

// NewFailureError maps a business failure to its status and error code. details is sent along
// so clients still see the recorded version, changes and errors.
func NewFailureError(failure *registry.Failure, details any) *APIError {
	var apiError *APIError
	switch failure.Kind {
	case registry.ErrorKindComposition:
		apiError = NewAPIError(http.StatusUnprocessableEntity, 42201, failure)
	case registry.ErrorKindInputValidation:
		apiError = NewAPIError(http.StatusUnprocessableEntity, 42202, failure)
	case registry.ErrorKindMissingServiceName:
		apiError = NewAPIError(http.StatusUnprocessableEntity, 42203, failure)
	case registry.ErrorKindMissingURL:
		apiError = NewAPIError(http.StatusUnprocessableEntity, 42204, failure)
	case registry.ErrorKindNotFound:
		apiError = NewAPIError(http.StatusNotFound, 40401, failure)
	case registry.ErrorKindValidation:
		apiError = NewAPIError(http.StatusConflict, 40901, failure)
	case registry.ErrorKindPolicy:
		apiError = NewAPIError(http.StatusConflict, 40902, failure)
	case registry.ErrorKindConflict:
		apiError = NewAPIError(http.StatusConflict, 40903, failure)
	default:
		apiError = NewAPIError(http.StatusInternalServerError, 50001, failure)
	}
	apiError.Details = details
	return apiError
}

func (a *APIError) Error() string {
	return fmt.Sprintf("apiError: %s", a.Message)
}

func (a *APIError) Unwrap() error {
	return a.err
}

func (a *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, a.httpStatusCode)
	return nil
}

// RenderError writes err to the client. Anything that is not an APIError is logged and answered
// with a generic message.
func RenderError(writer http.ResponseWriter, request *http.Request, log logr.Logger, err error) {
	apiError := &APIError{}
	if !errors.As(err, &apiError) {
		log.Error(err, "error handling request", "method", request.Method, "path", request.URL.Path)

		transientErr := &registry.TransientError{}
		if errors.As(err, &transientErr) {
			apiError = NewAPIError(http.StatusServiceUnavailable, 50301, fmt.Errorf("%s, try again later", transientErr.Op))
		} else {
			apiError = NewAPIError(http.StatusInternalServerError, 50001, fmt.Errorf("internal server error"))
		}
	}

	if renderErr := render.Render(writer, request, apiError); renderErr != nil {
		log.Error(renderErr, "error rendering api error")
	}
}

// BindError answers a request whose body could not be decoded.
func BindError(err error) *APIError {
	return NewAPIError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, fmt.Errorf("error parsing body: %s", err))
}

// ParseID reads a uuid url parameter.
func ParseID(request *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(request, name))
	if err != nil {
		return uuid.Nil, NewAPIError(http.StatusUnprocessableEntity, 42202, fmt.Errorf("invalid %s", name))
	}
	return id, nil
}
