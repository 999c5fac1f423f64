package mindar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/navikt/mindar/pkg/errs"
)

const (
	selectorValidationUUID        = "validation_uuid"
	selectorSubmissionPackageUUID = "submission_package_uuid"
	selectorSubmissionID          = "submission_id"
)

// StatusSelector picks the records of a table that a bulk status update
// applies to. The zero value selects nothing and is rejected by UpdateStatus.
type StatusSelector struct {
	key   string
	value string
}

// NewStatusSelector builds a selector from exactly one non-empty argument.
func NewStatusSelector(validationUUID, submissionPackageUUID, submissionID string) (StatusSelector, error) {
	const op errs.Op = "mindar.NewStatusSelector"

	var selectors []StatusSelector

	if validationUUID != "" {
		selectors = append(selectors, StatusSelector{key: selectorValidationUUID, value: validationUUID})
	}

	if submissionPackageUUID != "" {
		selectors = append(selectors, StatusSelector{key: selectorSubmissionPackageUUID, value: submissionPackageUUID})
	}

	if submissionID != "" {
		selectors = append(selectors, StatusSelector{key: selectorSubmissionID, value: submissionID})
	}

	if len(selectors) != 1 {
		return StatusSelector{}, errs.E(errs.InvalidRequest, op, fmt.Errorf("%w: got %d", ErrInvalidSelector, len(selectors)))
	}

	return selectors[0], nil
}

func ByValidationUUID(id uuid.UUID) StatusSelector {
	return StatusSelector{key: selectorValidationUUID, value: id.String()}
}

func BySubmissionPackageUUID(id uuid.UUID) StatusSelector {
	return StatusSelector{key: selectorSubmissionPackageUUID, value: id.String()}
}

func BySubmissionID(id string) StatusSelector {
	return StatusSelector{key: selectorSubmissionID, value: id}
}

func (s StatusSelector) Valid() bool {
	return s.key != "" && s.value != ""
}

func (s StatusSelector) String() string {
	return s.key + "=" + s.value
}

func (s StatusSelector) body() map[string]string {
	return map[string]string{s.key: s.value}
}

func (c *Client) UpdateStatus(ctx context.Context, schema, table string, sel StatusSelector) error {
	const op errs.Op = "mindar.Client.UpdateStatus"

	if !sel.Valid() {
		return errs.E(errs.InvalidRequest, op, ErrInvalidSelector)
	}

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodPost,
		template:   "/{schema}/tables/{table}/records/bulkUpdate",
		pathParams: []string{schema, table},
		body:       sel.body(),
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

// ImportCSV posts raw CSV data, header line included, into the table.
func (c *Client) ImportCSV(ctx context.Context, schema, table string, data io.Reader) error {
	const op errs.Op = "mindar.Client.ImportCSV"

	err := c.send(ctx, request{
		op:          op,
		method:      http.MethodPost,
		template:    "/{schema}/tables/{table}/records",
		pathParams:  []string{schema, table},
		body:        data,
		contentType: ContentTypeCSV,
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

func (c *Client) ImportCSVFile(ctx context.Context, schema, table, path string) error {
	const op errs.Op = "mindar.Client.ImportCSVFile"

	f, err := os.Open(path)
	if err != nil {
		return errs.E(errs.IO, op, errs.Parameter("path"), err)
	}
	defer f.Close()

	err = c.ImportCSV(ctx, schema, table, f)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

// ImportRecords marshals a slice of csv-tagged structs and imports the result.
func (c *Client) ImportRecords(ctx context.Context, schema, table string, records any) error {
	const op errs.Op = "mindar.Client.ImportRecords"

	data, err := gocsv.MarshalBytes(records)
	if err != nil {
		return errs.E(errs.InvalidRequest, op, errs.Parameter("records"), err)
	}

	err = c.ImportCSV(ctx, schema, table, bytes.NewReader(data))
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}
