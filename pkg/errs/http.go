package errs

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error ServiceError `json:"error"`
}

type ServiceError struct {
	Kind      string `json:"kind,omitempty"`
	Parameter string `json:"param,omitempty"`
	Message   string `json:"message,omitempty"`
}

func statusCode(k Kind) int {
	switch k {
	case Invalid, InvalidRequest, Validation:
		return http.StatusBadRequest
	case NotExist:
		return http.StatusNotFound
	case Exist:
		return http.StatusConflict
	case Unauthenticated:
		return http.StatusUnauthorized
	case Unauthorized:
		return http.StatusForbidden
	case Unsupported:
		return http.StatusUnprocessableEntity
	case IO:
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

// HTTPErrorResponse writes err as a JSON error body with a status code
// derived from its Kind.
func HTTPErrorResponse(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if err == nil {
		logger.Error().Msg("HTTPErrorResponse called with nil error")
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	var e *Error
	if !errors.As(err, &e) {
		logger.Error().Err(err).Msg("unknown error")
		writeResponse(w, logger, http.StatusInternalServerError, ServiceError{
			Kind:    Internal.String(),
			Message: "unexpected error",
		})

		return
	}

	code := statusCode(e.Kind)

	event := logger.Warn()
	if code >= http.StatusInternalServerError {
		event = logger.Error()
	}

	event.Err(err).Strs("stack", OpStack(err)).Int("status", code).Msg("error_response")

	msg := err.Error()
	if e.Err != nil {
		msg = e.Err.Error()
	}

	writeResponse(w, logger, code, ServiceError{
		Kind:      e.Kind.String(),
		Parameter: string(e.Param),
		Message:   msg,
	})
}

func writeResponse(w http.ResponseWriter, logger zerolog.Logger, code int, se ServiceError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: se}); err != nil {
		logger.Error().Err(err).Msg("encoding error response")
	}
}
