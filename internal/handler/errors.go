package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// errorMapping pairs a service sentinel with its API status and code.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrUnknownClass, http.StatusBadRequest, response.ErrUnknownClass},
	{service.ErrAdminDisabled, http.StatusForbidden, response.ErrAdminDisabled},
	{service.ErrNotStudent, http.StatusForbidden, response.ErrStudentAccessOnly},

	{service.ErrExamNotEligible, http.StatusNotFound, response.ErrExamNotAvailable},
	{service.ErrInvalidToken, http.StatusBadRequest, response.ErrInvalidEntryToken},
	{service.ErrSessionClosed, http.StatusGone, response.ErrSessionClosed},
	{service.ErrNotNative, http.StatusConflict, response.ErrNotNativeExam},
	{service.ErrUnknownQuestion, http.StatusNotFound, response.ErrUnknownQuestion},
	{service.ErrIndexOutOfRange, http.StatusBadRequest, response.ErrIndexOutOfRange},
	{service.ErrFinishNotRequested, http.StatusConflict, response.ErrFinishNotRequested},
	{service.ErrSubmissionInFlight, http.StatusConflict, response.ErrSubmissionInFlight},
	{service.ErrSubmissionFailed, http.StatusBadGateway, response.ErrSubmissionFailed},
	{service.ErrNothingToRetry, http.StatusConflict, response.ErrNothingToRetry},
	{service.ErrInvalidState, http.StatusConflict, response.ErrInvalidState},

	{service.ErrScoreSyncNative, http.StatusConflict, response.ErrScoreSyncNative},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{model.ErrResultNotFound, http.StatusNotFound, response.ErrResultNotFound},
}

// classify maps err to an API status and code. Errors that are not a known
// sentinel are transport failures of the catalog.
func classify(err error) (int, response.ErrCode, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusServiceUnavailable, response.ErrCatalogUnavailable, false
}
