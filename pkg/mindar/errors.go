package mindar

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSelector        = errors.New("exactly one of validation_uuid, submission_package_uuid or submission_id must be set")
	ErrStructureNotFound      = errors.New("could not find corresponding data-structure")
	ErrUnsupportedSubmissions = errors.New("multiple submissions per table are not supported")
	ErrIncompleteSubmission   = errors.New("submission data is incomplete")
	ErrNoTableVersion         = errors.New("table name has no version suffix")
	ErrExportStalled          = errors.New("export stalled")
)

// StatusError is returned when the service answers with a non 2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.URL, e.StatusCode)
}

// StatusCode returns the HTTP status of the first *StatusError in the chain
// of err, or 0 if there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}

	return 0
}
