// Package handlers implements the gin handlers of the molbayes HTTP API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molbayes/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusForError maps application error codes to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCode(err, errors.CodeConflict),
		errors.IsCode(err, errors.ErrCodeModelNotBuilt):
		return http.StatusConflict
	case errors.IsCode(err, errors.ErrCodeTrainingEmpty),
		errors.IsCode(err, errors.ErrCodeValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.IsCode(err, errors.CodeInvalidParam),
		errors.IsCode(err, errors.ErrCodeValidation),
		errors.IsCode(err, errors.ErrCodeInvalidInput),
		errors.IsCode(err, errors.ErrCodeFingerprintKindUnsupported),
		errors.IsCode(err, errors.ErrCodeFoldingInvalid),
		errors.IsCode(err, errors.ErrCodeMoleculeInvalidFormat),
		errors.IsCode(err, errors.ErrCodeModelFormat):
		return http.StatusBadRequest
	case errors.IsCode(err, errors.ErrCodeStorageError),
		errors.IsCode(err, errors.ErrCodeCacheError),
		errors.IsCode(err, errors.ErrCodeMessaging):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError aborts the request with the mapped status.  Internal errors
// are masked; the original is attached to the context for request logging.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := StatusForError(err)
	resp := ErrorResponse{Code: errors.GetCode(err).String(), Message: err.Error()}
	if status == http.StatusInternalServerError {
		resp = ErrorResponse{Code: errors.ErrCodeInternal.String(), Message: "internal server error"}
	}
	c.AbortWithStatusJSON(status, resp)
}

// bindJSON decodes the request body into v, reporting malformed input as
// CodeInvalidParam.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeAppError(c, errors.Wrap(err, errors.CodeInvalidParam, "malformed request body"))
		return false
	}
	return true
}
