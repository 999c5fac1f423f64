package mindar_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/navikt/mindar/pkg/errs"
	"github.com/navikt/mindar/pkg/mindar"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	basePath = "/api/v1/mindar"
	username = "user"
	password = "pass"
)

type recordedRequest struct {
	Method      string
	Path        string
	Query       string
	Body        string
	ContentType string
	Accept      string
}

func newRecordingServer(t *testing.T, status int, response string, into *recordedRequest) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, username, user)
		assert.Equal(t, password, pass)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		*into = recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.RawQuery,
			Body:        string(body),
			ContentType: r.Header.Get("Content-Type"),
			Accept:      r.Header.Get("Accept"),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))

	t.Cleanup(server.Close)

	return server
}

func TestClient_Requests(t *testing.T) {
	validationUUID := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

	testCases := []struct {
		name     string
		response string
		call     func(ctx context.Context, c *mindar.Client) error
		expect   recordedRequest
	}{
		{
			name:     "create mindar",
			response: `{"name":"mine","schema":"nda_abc","status":"ACTIVE"}`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.CreateMindar(ctx, mindar.CreateMindarRequest{Password: "secret", PackageID: 1234, NickName: "mine"})
				return err
			},
			expect: recordedRequest{
				Method:      http.MethodPost,
				Path:        basePath,
				Body:        `{"password":"secret","package_id":1234,"nick_name":"mine"}`,
				ContentType: "application/json",
				Accept:      "application/json",
			},
		},
		{
			name:     "create mindar without optional fields",
			response: `{"name":"nda_abc","schema":"nda_abc","status":"ACTIVE"}`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.CreateMindar(ctx, mindar.CreateMindarRequest{Password: "secret"})
				return err
			},
			expect: recordedRequest{
				Method:      http.MethodPost,
				Path:        basePath,
				Body:        `{"password":"secret"}`,
				ContentType: "application/json",
				Accept:      "application/json",
			},
		},
		{
			name:     "list mindars excludes deleted by default",
			response: `[]`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.ListMindars(ctx, false)
				return err
			},
			expect: recordedRequest{
				Method: http.MethodGet,
				Path:   basePath,
				Accept: "application/json",
			},
		},
		{
			name:     "list mindars including deleted",
			response: `[]`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.ListMindars(ctx, true)
				return err
			},
			expect: recordedRequest{
				Method: http.MethodGet,
				Path:   basePath,
				Query:  "excludeDeleted=false",
				Accept: "application/json",
			},
		},
		{
			name: "delete mindar",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.DeleteMindar(ctx, "nda_abc")
			},
			expect: recordedRequest{
				Method: http.MethodDelete,
				Path:   basePath + "/nda_abc/",
				Accept: "application/json",
			},
		},
		{
			name: "refresh stats",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.RefreshStats(ctx, "nda_abc")
			},
			expect: recordedRequest{
				Method: http.MethodPost,
				Path:   basePath + "/nda_abc/refresh_stats",
				Accept: "application/json",
			},
		},
		{
			name: "add table",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.AddTable(ctx, "nda_abc", "emotion02")
			},
			expect: recordedRequest{
				Method: http.MethodPost,
				Path:   basePath + "/nda_abc/tables",
				Query:  "table_name=emotion02",
				Accept: "application/json",
			},
		},
		{
			name: "drop table",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.DropTable(ctx, "nda_abc", "emotion02")
			},
			expect: recordedRequest{
				Method: http.MethodDelete,
				Path:   basePath + "/nda_abc/tables/emotion02/",
				Accept: "application/json",
			},
		},
		{
			name:     "list tables",
			response: `[{"table_name":"emotion02","row_count":3}]`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.ListTables(ctx, "nda_abc")
				return err
			},
			expect: recordedRequest{
				Method: http.MethodGet,
				Path:   basePath + "/nda_abc/tables/",
				Accept: "application/json",
			},
		},
		{
			name: "import csv",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.ImportCSV(ctx, "nda_abc", "emotion02", strings.NewReader("a,b\n1,2\n"))
			},
			expect: recordedRequest{
				Method:      http.MethodPost,
				Path:        basePath + "/nda_abc/tables/emotion02/records",
				Body:        "a,b\n1,2\n",
				ContentType: "text/csv",
				Accept:      "application/json",
			},
		},
		{
			name: "update status by validation uuid",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.UpdateStatus(ctx, "nda_abc", "emotion02", mindar.ByValidationUUID(validationUUID))
			},
			expect: recordedRequest{
				Method:      http.MethodPost,
				Path:        basePath + "/nda_abc/tables/emotion02/records/bulkUpdate",
				Body:        `{"validation_uuid":"123e4567-e89b-12d3-a456-426614174000"}`,
				ContentType: "application/json",
				Accept:      "application/json",
			},
		},
		{
			name:     "submissions",
			response: `{"submissions":[]}`,
			call: func(ctx context.Context, c *mindar.Client) error {
				_, err := c.Submissions(ctx, "nda_abc")
				return err
			},
			expect: recordedRequest{
				Method: http.MethodGet,
				Path:   basePath + "/nda_abc/submissions/",
				Accept: "application/json",
			},
		},
		{
			name: "schema handle forwards the schema name",
			call: func(ctx context.Context, c *mindar.Client) error {
				return c.Schema("nda_xyz").DropTable(ctx, "fmriresults01")
			},
			expect: recordedRequest{
				Method: http.MethodDelete,
				Path:   basePath + "/nda_xyz/tables/fmriresults01/",
				Accept: "application/json",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := recordedRequest{}
			server := newRecordingServer(t, http.StatusOK, tc.response, &got)

			client := mindar.New(server.URL+basePath+"/", username, password, http.DefaultClient, zerolog.Nop())

			err := tc.call(context.Background(), client)
			require.NoError(t, err)

			if tc.expect.ContentType == "application/json" {
				assert.JSONEq(t, tc.expect.Body, got.Body)
				got.Body = tc.expect.Body
			}

			diff := cmp.Diff(tc.expect, got)
			assert.Empty(t, diff)
		})
	}
}

func TestClient_CreateMindar(t *testing.T) {
	testCases := []struct {
		name      string
		request   mindar.CreateMindarRequest
		status    int
		response  string
		expect    *mindar.Mindar
		expectErr string
	}{
		{
			name:     "returns the created mindar",
			request:  mindar.CreateMindarRequest{Password: "secret", NickName: "mine"},
			status:   http.StatusCreated,
			response: `{"name":"mine","schema":"nda_abc","status":"ACTIVE","created_date":"2024-08-01T10:00:00Z"}`,
			expect: &mindar.Mindar{
				Name:        "mine",
				Schema:      "nda_abc",
				Status:      "ACTIVE",
				CreatedDate: "2024-08-01T10:00:00Z",
			},
		},
		{
			name:      "requires a password",
			request:   mindar.CreateMindarRequest{NickName: "mine"},
			expectErr: "mindar.Client.CreateMindar: input validation error: password: cannot be blank.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := recordedRequest{}
			server := newRecordingServer(t, tc.status, tc.response, &got)

			client := mindar.New(server.URL, username, password, http.DefaultClient, zerolog.Nop())

			m, err := client.CreateMindar(context.Background(), tc.request)
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.expectErr, err.Error())
				assert.Empty(t, got.Method, "no request should be sent")

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expect, m)
		})
	}
}

func TestClient_ListTables(t *testing.T) {
	got := recordedRequest{}
	server := newRecordingServer(t, http.StatusOK, `[{"table_name":"emotion02","row_count":3},{"table_name":"fmriresults01"}]`, &got)

	client := mindar.New(server.URL, username, password, http.DefaultClient, zerolog.Nop())

	tables, err := client.ListTables(context.Background(), "nda_abc")
	require.NoError(t, err)

	assert.Equal(t, []mindar.Table{
		{Name: "emotion02", RowCount: 3},
		{Name: "fmriresults01"},
	}, tables)
}

func TestClient_StatusError(t *testing.T) {
	got := recordedRequest{}
	server := newRecordingServer(t, http.StatusInternalServerError, "boom", &got)

	client := mindar.New(server.URL, username, password, http.DefaultClient, zerolog.Nop())

	err := client.RefreshStats(context.Background(), "nda_abc")
	require.Error(t, err)

	assert.True(t, errs.KindIs(errs.IO, err))
	assert.Equal(t, http.StatusInternalServerError, mindar.StatusCode(err))

	var se *mindar.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "boom", se.Body)
	assert.Equal(t, http.MethodPost, se.Method)

	assert.Equal(t, []string{"mindar.Client.RefreshStats", "mindar.Client.send", "mindar.Client.do"}, errs.OpStack(err))
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := mindar.New(url, username, password, http.DefaultClient, zerolog.Nop())

	_, err := client.ListMindars(context.Background(), false)
	require.Error(t, err)

	assert.True(t, errs.KindIs(errs.IO, err))
	assert.Equal(t, 0, mindar.StatusCode(err))
}
