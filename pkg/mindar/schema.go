package mindar

import (
	"context"
	"io"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/navikt/mindar/pkg/errs"
)

type Mindar struct {
	Name        string `json:"name"`
	Schema      string `json:"schema"`
	PackageID   int64  `json:"package_id,omitempty"`
	Status      string `json:"status"`
	CreatedDate string `json:"created_date,omitempty"`
}

type CreateMindarRequest struct {
	Password  string `json:"password"`
	PackageID int64  `json:"package_id,omitempty"`
	NickName  string `json:"nick_name,omitempty"`
}

func (r CreateMindarRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.PackageID, validation.Min(int64(0))),
	)
}

func (c *Client) CreateMindar(ctx context.Context, r CreateMindarRequest) (*Mindar, error) {
	const op errs.Op = "mindar.Client.CreateMindar"

	if err := r.Validate(); err != nil {
		return nil, errs.E(errs.Validation, op, err)
	}

	m := &Mindar{}

	err := c.send(ctx, request{
		op:       op,
		method:   http.MethodPost,
		template: "",
		body:     r,
	}, m)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return m, nil
}

// ListMindars lists the mindars owned by the user. Deleted mindars are left
// out by the service unless includeDeleted is set.
func (c *Client) ListMindars(ctx context.Context, includeDeleted bool) ([]Mindar, error) {
	const op errs.Op = "mindar.Client.ListMindars"

	q := url.Values{}
	if includeDeleted {
		q.Set("excludeDeleted", "false")
	}

	var mindars []Mindar

	err := c.send(ctx, request{
		op:       op,
		method:   http.MethodGet,
		template: "",
		query:    q,
	}, &mindars)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return mindars, nil
}

func (c *Client) DeleteMindar(ctx context.Context, schema string) error {
	const op errs.Op = "mindar.Client.DeleteMindar"

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodDelete,
		template:   "/{schema}/",
		pathParams: []string{schema},
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

func (c *Client) RefreshStats(ctx context.Context, schema string) error {
	const op errs.Op = "mindar.Client.RefreshStats"

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodPost,
		template:   "/{schema}/refresh_stats",
		pathParams: []string{schema},
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

// Schema is a handle bound to one mindar schema.
type Schema struct {
	Name   string
	client *Client
}

func (c *Client) Schema(name string) Schema {
	return Schema{Name: name, client: c}
}

func (s Schema) Delete(ctx context.Context) error {
	return s.client.DeleteMindar(ctx, s.Name)
}

func (s Schema) RefreshStats(ctx context.Context) error {
	return s.client.RefreshStats(ctx, s.Name)
}

func (s Schema) AddTable(ctx context.Context, table string) error {
	return s.client.AddTable(ctx, s.Name, table)
}

func (s Schema) DropTable(ctx context.Context, table string) error {
	return s.client.DropTable(ctx, s.Name, table)
}

func (s Schema) Tables(ctx context.Context) ([]Table, error) {
	return s.client.ListTables(ctx, s.Name)
}

func (s Schema) ImportCSV(ctx context.Context, table string, data io.Reader) error {
	return s.client.ImportCSV(ctx, s.Name, table, data)
}

func (s Schema) UpdateStatus(ctx context.Context, table string, sel StatusSelector) error {
	return s.client.UpdateStatus(ctx, s.Name, table, sel)
}

func (s Schema) Export(ctx context.Context, table string, opts ExportOptions) (string, error) {
	return s.client.ExportTable(ctx, s.Name, table, opts)
}

func (s Schema) Submissions(ctx context.Context) (map[string]TableSubmission, error) {
	return s.client.Submissions(ctx, s.Name)
}
