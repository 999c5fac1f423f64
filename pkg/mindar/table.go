package mindar

import (
	"context"
	"net/http"
	"net/url"

	"github.com/navikt/mindar/pkg/errs"
)

type Table struct {
	Name     string `json:"table_name"`
	RowCount int64  `json:"row_count,omitempty"`
}

func (c *Client) AddTable(ctx context.Context, schema, table string) error {
	const op errs.Op = "mindar.Client.AddTable"

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodPost,
		template:   "/{schema}/tables",
		pathParams: []string{schema},
		query:      url.Values{"table_name": {table}},
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

func (c *Client) DropTable(ctx context.Context, schema, table string) error {
	const op errs.Op = "mindar.Client.DropTable"

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodDelete,
		template:   "/{schema}/tables/{table}/",
		pathParams: []string{schema, table},
	}, nil)
	if err != nil {
		return errs.E(op, err)
	}

	return nil
}

func (c *Client) ListTables(ctx context.Context, schema string) ([]Table, error) {
	const op errs.Op = "mindar.Client.ListTables"

	var tables []Table

	err := c.send(ctx, request{
		op:         op,
		method:     http.MethodGet,
		template:   "/{schema}/tables/",
		pathParams: []string{schema},
	}, &tables)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return tables, nil
}
