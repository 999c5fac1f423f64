package mindar_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/navikt/mindar/pkg/errs"
	"github.com/navikt/mindar/pkg/mindar"
	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSubmissions(t *testing.T, raw string) mindar.SubmissionsResponse {
	t.Helper()

	resp := mindar.SubmissionsResponse{}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	return resp
}

func TestGroupSubmissionsByTable(t *testing.T) {
	testCases := []struct {
		name       string
		raw        string
		expect     map[string]mindar.TableSubmission
		expectErr  string
		expectIs   error
		expectKind errs.Kind
	}{
		{
			name: "single submission",
			raw: `{"submissions":[{"submission_id":1234,"tables":[
				{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"]}
			]}]}`,
			expect: map[string]mindar.TableSubmission{
				"abc": {
					ShortName:           "abc",
					SubmissionID:        "1234",
					ValidationUUID:      "v1",
					SubmissionPackageID: "p1",
				},
			},
		},
		{
			name: "several tables in one submission",
			raw: `{"submissions":[{"submission_id":"77","tables":[
				{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"]},
				{"short_name":"def","validation_uuid":["v2"],"submission_package_id":["p1"]}
			]}]}`,
			expect: map[string]mindar.TableSubmission{
				"abc": {ShortName: "abc", SubmissionID: "77", ValidationUUID: "v1", SubmissionPackageID: "p1"},
				"def": {ShortName: "def", SubmissionID: "77", ValidationUUID: "v2", SubmissionPackageID: "p1"},
			},
		},
		{
			name:   "no submissions",
			raw:    `{"submissions":[]}`,
			expect: map[string]mindar.TableSubmission{},
		},
		{
			name: "same table in two submissions",
			raw: `{"submissions":[
				{"submission_id":1,"tables":[{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"]}]},
				{"submission_id":2,"tables":[{"short_name":"abc","validation_uuid":["v2"],"submission_package_id":["p2"]}]}
			]}`,
			expectErr:  "mindar.GroupSubmissionsByTable: unsupported operation: parameter abc: multiple submissions per table are not supported: detected tables with multiple submissions in this mindar, contact the NDA help desk for assistance",
			expectIs:   mindar.ErrUnsupportedSubmissions,
			expectKind: errs.Unsupported,
		},
		{
			name: "multiple validation results",
			raw: `{"submissions":[{"submission_id":1,"tables":[
				{"short_name":"abc","validation_uuid":["v1","v2"],"submission_package_id":["p1"]}
			]}]}`,
			expectIs:   mindar.ErrUnsupportedSubmissions,
			expectKind: errs.Unsupported,
		},
		{
			name: "multiple submission packages",
			raw: `{"submissions":[{"submission_id":1,"tables":[
				{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1","p2"]}
			]}]}`,
			expectErr:  "mindar.GroupSubmissionsByTable: unsupported operation: parameter abc: multiple submissions per table are not supported: detected tables with multiple submission packages in this mindar, contact the NDA help desk for assistance",
			expectIs:   mindar.ErrUnsupportedSubmissions,
			expectKind: errs.Unsupported,
		},
		{
			name: "empty validation results",
			raw: `{"submissions":[{"submission_id":1,"tables":[
				{"short_name":"abc","validation_uuid":[],"submission_package_id":["p1"]}
			]}]}`,
			expectIs:   mindar.ErrIncompleteSubmission,
			expectKind: errs.Invalid,
		},
		{
			name: "missing submission packages",
			raw: `{"submissions":[{"submission_id":1,"tables":[
				{"short_name":"abc","validation_uuid":["v1"]}
			]}]}`,
			expectIs:   mindar.ErrIncompleteSubmission,
			expectKind: errs.Invalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mindar.GroupSubmissionsByTable(decodeSubmissions(t, tc.raw))

			if tc.expectIs != nil {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.True(t, errors.Is(err, tc.expectIs))
				assert.True(t, errs.KindIs(tc.expectKind, err))

				if tc.expectErr != "" {
					assert.Equal(t, tc.expectErr, err.Error())
				}

				assert.Equal(t, 1, strings.Count(err.Error(), tc.expectKind.String()))

				return
			}

			require.NoError(t, err)

			diff := cmp.Diff(tc.expect, got)
			assert.Empty(t, diff)
		})
	}
}

func TestGroupSubmissionsByTable_Golden(t *testing.T) {
	raw := `{"submissions":[{"submission_id":1234,"tables":[
		{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"],"status":"Upload Completed"}
	]}]}`

	got, err := mindar.GroupSubmissionsByTable(decodeSubmissions(t, raw))
	require.NoError(t, err)

	g := goldie.New(t)
	g.AssertJson(t, "submissions_by_table", got)
}

func TestGroupSubmissionsByTable_InjectedSubmissionID(t *testing.T) {
	raw := `{"submissions":[{"submission_id":1234,"tables":[
		{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"],"submission_id":"stale","dataset_id":"NDAR_DS1"}
	]}]}`

	got, err := mindar.GroupSubmissionsByTable(decodeSubmissions(t, raw))
	require.NoError(t, err)

	table := got["abc"]
	assert.Equal(t, mindar.SubmissionID("1234"), table.SubmissionID)
	assert.NotContains(t, table.Fields, "submission_id")
	assert.Contains(t, table.Fields, "dataset_id")

	out, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"short_name": "abc",
		"submission_id": "1234",
		"validation_uuid": "v1",
		"submission_package_id": "p1",
		"dataset_id": "NDAR_DS1"
	}`, string(out))
}

func TestTableSubmission_MarshalJSONNamedKeysWin(t *testing.T) {
	table := mindar.TableSubmission{
		ShortName:           "abc",
		SubmissionID:        "1",
		ValidationUUID:      "v1",
		SubmissionPackageID: "p1",
		Fields: map[string]json.RawMessage{
			"short_name":    json.RawMessage(`"other"`),
			"submission_id": json.RawMessage(`99`),
			"status":        json.RawMessage(`"Upload Completed"`),
		},
	}

	out, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"short_name": "abc",
		"submission_id": "1",
		"validation_uuid": "v1",
		"submission_package_id": "p1",
		"status": "Upload Completed"
	}`, string(out))
}

func TestSubmissionID_UnmarshalJSON(t *testing.T) {
	testCases := []struct {
		raw       string
		expect    mindar.SubmissionID
		expectErr bool
	}{
		{raw: `1234`, expect: "1234"},
		{raw: `"1234"`, expect: "1234"},
		{raw: `null`, expect: ""},
		{raw: `true`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			var id mindar.SubmissionID

			err := json.Unmarshal([]byte(tc.raw), &id)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expect, id)
		})
	}
}

func TestSubmissionTable_RoundTripKeepsExtraFields(t *testing.T) {
	raw := `{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"],"dataset_id":"NDAR_DS1"}`

	table := mindar.SubmissionTable{}
	require.NoError(t, json.Unmarshal([]byte(raw), &table))

	assert.Equal(t, "abc", table.ShortName)
	assert.Contains(t, table.Fields, "dataset_id")
	assert.NotContains(t, table.Fields, "short_name")

	out, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestClient_Submissions(t *testing.T) {
	got := recordedRequest{}
	server := newRecordingServer(t, http.StatusOK, `{"submissions":[
		{"submission_id":1,"tables":[{"short_name":"abc","validation_uuid":["v1"],"submission_package_id":["p1"]}]},
		{"submission_id":2,"tables":[{"short_name":"abc","validation_uuid":["v2"],"submission_package_id":["p2"]}]}
	]}`, &got)

	client := mindar.New(server.URL, username, password, http.DefaultClient, zerolog.Nop())

	_, err := client.Schema("nda_abc").Submissions(context.Background())
	require.Error(t, err)

	assert.True(t, errors.Is(err, mindar.ErrUnsupportedSubmissions))
	assert.Equal(t, "/nda_abc/submissions/", got.Path)
}
