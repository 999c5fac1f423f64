package mindar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/navikt/mindar/pkg/errs"
)

// SubmissionID accepts both numeric and string ids from the service.
type SubmissionID string

func (id *SubmissionID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))

	switch {
	case s == "null":
		*id = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}

		*id = SubmissionID(str)
	default:
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("invalid submission id %s", s)
		}

		*id = SubmissionID(s)
	}

	return nil
}

type SubmissionsResponse struct {
	Submissions []Submission `json:"submissions"`
}

type Submission struct {
	SubmissionID SubmissionID      `json:"submission_id"`
	Tables       []SubmissionTable `json:"tables"`
}

// SubmissionTable is one table of a submission as returned by the service.
// Fields holds every attribute other than the three named ones.
type SubmissionTable struct {
	ShortName           string
	ValidationUUID      []string
	SubmissionPackageID []string
	Fields              map[string]json.RawMessage
}

const (
	fieldShortName           = "short_name"
	fieldValidationUUID      = "validation_uuid"
	fieldSubmissionPackageID = "submission_package_id"
	fieldSubmissionID        = "submission_id"
)

func (t *SubmissionTable) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	targets := map[string]any{
		fieldShortName:           &t.ShortName,
		fieldValidationUUID:      &t.ValidationUUID,
		fieldSubmissionPackageID: &t.SubmissionPackageID,
	}

	for key, target := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}

		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}

		delete(fields, key)
	}

	if len(fields) > 0 {
		t.Fields = fields
	}

	return nil
}

func (t SubmissionTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Fields)+3)
	for k, v := range t.Fields {
		out[k] = v
	}

	out[fieldShortName] = t.ShortName
	out[fieldValidationUUID] = t.ValidationUUID
	out[fieldSubmissionPackageID] = t.SubmissionPackageID

	return json.Marshal(out)
}

// TableSubmission is the merged view of the single submission a table is
// part of. It marshals as one flat object: the table's own attributes next to
// the named keys, which take precedence.
type TableSubmission struct {
	ShortName           string
	SubmissionID        SubmissionID
	ValidationUUID      string
	SubmissionPackageID string
	Fields              map[string]json.RawMessage
}

func (t TableSubmission) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Fields)+4)
	for k, v := range t.Fields {
		out[k] = v
	}

	out[fieldShortName] = t.ShortName
	out[fieldSubmissionID] = t.SubmissionID
	out[fieldValidationUUID] = t.ValidationUUID
	out[fieldSubmissionPackageID] = t.SubmissionPackageID

	return json.Marshal(out)
}

func unsupportedSubmissions(category string) error {
	return fmt.Errorf("%w: detected tables with multiple %s in this mindar, contact the NDA help desk for assistance", ErrUnsupportedSubmissions, category)
}

// single unwraps a list that the service returns but that this client only
// supports with exactly one element.
func single(category string, values []string) (string, error) {
	switch len(values) {
	case 0:
		return "", fmt.Errorf("%w: no %s", ErrIncompleteSubmission, category)
	case 1:
		return values[0], nil
	}

	return "", unsupportedSubmissions(category)
}

func newTableSubmission(id SubmissionID, t SubmissionTable) (TableSubmission, error) {
	validationUUID, err := single("validation results", t.ValidationUUID)
	if err != nil {
		return TableSubmission{}, err
	}

	packageID, err := single("submission packages", t.SubmissionPackageID)
	if err != nil {
		return TableSubmission{}, err
	}

	var fields map[string]json.RawMessage

	for k, v := range t.Fields {
		if k == fieldSubmissionID {
			continue
		}

		if fields == nil {
			fields = map[string]json.RawMessage{}
		}

		fields[k] = v
	}

	return TableSubmission{
		ShortName:           t.ShortName,
		SubmissionID:        id,
		ValidationUUID:      validationUUID,
		SubmissionPackageID: packageID,
		Fields:              fields,
	}, nil
}

// GroupSubmissionsByTable keys the tables of all submissions by short name.
// A table may only be part of one submission, with one validation result and
// one submission package.
func GroupSubmissionsByTable(resp SubmissionsResponse) (map[string]TableSubmission, error) {
	const op errs.Op = "mindar.GroupSubmissionsByTable"

	grouped := map[string]TableSubmission{}

	for _, s := range resp.Submissions {
		for _, t := range s.Tables {
			if _, ok := grouped[t.ShortName]; ok {
				return nil, errs.E(errs.Unsupported, op, errs.Parameter(t.ShortName), unsupportedSubmissions("submissions"))
			}

			ts, err := newTableSubmission(s.SubmissionID, t)
			if err != nil {
				kind := errs.Unsupported
				if errors.Is(err, ErrIncompleteSubmission) {
					kind = errs.Invalid
				}

				return nil, errs.E(kind, op, errs.Parameter(t.ShortName), err)
			}

			grouped[t.ShortName] = ts
		}
	}

	return grouped, nil
}

// Submissions fetches the submissions of a mindar keyed by table short name.
func (c *Client) Submissions(ctx context.Context, schema string) (map[string]TableSubmission, error) {
	const op errs.Op = "mindar.Client.Submissions"

	resp := SubmissionsResponse{}

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodGet,
		template:   "/{schema}/submissions/",
		pathParams: []string{schema},
	}, &resp)
	if err != nil {
		return nil, errs.E(op, err)
	}

	grouped, err := GroupSubmissionsByTable(resp)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return grouped, nil
}
