package mindar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/navikt/mindar/pkg/errs"
)

const exportChunkSize = 32 * 1024

// ProgressReporter receives the number of bytes written after every chunk.
// *progressbar.ProgressBar satisfies it.
type ProgressReporter interface {
	Add(n int) error
}

type ExportOptions struct {
	// RootDir is the directory the <table>.csv file is written to, "." if empty.
	RootDir string
	// IncludeRowID asks the service to add the internal table row id column.
	IncludeRowID bool
	// AddHeader writes a "name,version" line derived from the table name
	// before the records.
	AddHeader bool
	Progress  ProgressReporter
}

func (o ExportOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.RootDir, validation.By(func(value interface{}) error {
			dir, _ := value.(string)
			if dir == "" {
				return nil
			}

			info, err := os.Stat(dir)
			if err != nil {
				return err
			}

			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			return nil
		})),
	)
}

var tableVersion = regexp.MustCompile(`^(.*?)(\d+)$`)

// SplitTableVersion splits a table identifier such as "emotion02" into its
// short name and version.
func SplitTableVersion(table string) (string, string, error) {
	m := tableVersion.FindStringSubmatch(table)
	if m == nil || m[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoTableVersion, table)
	}

	return m[1], m[2], nil
}

// ExportFile returns the path a table is exported to.
func ExportFile(rootDir, table string) string {
	if rootDir == "" {
		rootDir = "."
	}

	return filepath.Join(rootDir, table+".csv")
}

// ExportTable streams all records of the table into <RootDir>/<table>.csv
// and returns the path of the file. An existing file is replaced. On any
// failure the partially written file is removed before the error is returned.
func (c *Client) ExportTable(ctx context.Context, schema, table string, opts ExportOptions) (string, error) {
	const op errs.Op = "mindar.Client.ExportTable"

	start := time.Now()
	dest := ExportFile(opts.RootDir, table)

	path, err := c.exportTable(ctx, schema, table, dest, opts)
	if err != nil {
		if errors.Is(err, ErrStructureNotFound) {
			c.log.Error().Str("table", table).Msg("could not find corresponding data-structure in NDA, only public data-structures can be exported")
		} else {
			c.log.Error().Err(err).Fields(map[string]any{
				"table":    table,
				"elapsed":  time.Since(start).String(),
				"op_stack": errs.OpStack(err),
				"stack":    string(debug.Stack()),
			}).Msg("exporting table")
		}

		if rmErr := removeIfExists(dest); rmErr != nil {
			c.log.Warn().Err(rmErr).Str("path", dest).Msg("removing partial export")
		}

		return "", errs.E(op, err)
	}

	c.log.Info().Fields(map[string]any{
		"table":   table,
		"path":    path,
		"elapsed": time.Since(start).String(),
	}).Msg("done exporting table")

	return path, nil
}

func (c *Client) exportTable(ctx context.Context, schema, table, dest string, opts ExportOptions) (string, error) {
	const op errs.Op = "mindar.Client.exportTable"

	if err := opts.Validate(); err != nil {
		return "", errs.E(errs.Validation, op, err)
	}

	var header string

	if opts.AddHeader {
		name, version, err := SplitTableVersion(table)
		if err != nil {
			return "", errs.E(errs.Invalid, op, errs.Parameter("table"), err)
		}

		header = name + "," + version + "\n"
	}

	if err := removeIfExists(dest); err != nil {
		return "", errs.E(errs.IO, op, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", errs.E(errs.IO, op, err)
	}
	defer f.Close()

	c.log.Info().Str("table", table).Str("path", dest).Msg("exporting table")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stall := time.AfterFunc(c.exportTimeout, func() {
		cancel(ErrExportStalled)
	})
	defer stall.Stop()

	res, err := c.do(ctx, c.streamClient, request{
		op:         "mindar.Client.ExportTable",
		method:     http.MethodGet,
		template:   "/{schema}/tables/{table}/records",
		pathParams: []string{schema, table},
		query:      url.Values{"include_table_row_id": {strconv.FormatBool(opts.IncludeRowID)}},
		accept:     ContentTypeText,
	})
	if err != nil {
		if isMissingStructure(err, table) {
			return "", errs.E(errs.NotExist, op, fmt.Errorf("table %s: %w: %w", table, ErrStructureNotFound, err))
		}

		if stalled(ctx) {
			return "", errs.E(errs.IO, op, fmt.Errorf("%w: no response within %s: %w", ErrExportStalled, c.exportTimeout, err))
		}

		return "", errs.E(op, err)
	}
	defer res.Body.Close()

	stall.Reset(c.exportTimeout)
	body := &stallReader{r: res.Body, timer: stall, timeout: c.exportTimeout}

	w := bufio.NewWriter(f)

	if header != "" {
		if _, err := w.WriteString(header); err != nil {
			return "", errs.E(errs.IO, op, err)
		}
	}

	n, err := c.copyChunks(w, body, opts.Progress)
	if err != nil {
		if stalled(ctx) {
			return "", errs.E(errs.IO, op, fmt.Errorf("%w: no data for %s: %w", ErrExportStalled, c.exportTimeout, err))
		}

		return "", errs.E(errs.IO, op, err)
	}

	if err := w.Flush(); err != nil {
		return "", errs.E(errs.IO, op, err)
	}

	if err := f.Close(); err != nil {
		return "", errs.E(errs.IO, op, err)
	}

	c.metrics.observeExport(n)

	return dest, nil
}

// copyChunks copies src to dst one read at a time, reporting the size of
// every non-empty chunk.
func (c *Client) copyChunks(dst io.Writer, src io.Reader, progress ProgressReporter) (int64, error) {
	buf := make([]byte, exportChunkSize)

	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("writing chunk: %w", err)
			}

			total += int64(n)

			if progress != nil {
				if err := progress.Add(n); err != nil {
					c.log.Debug().Err(err).Msg("reporting progress")
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return total, nil
		}

		if readErr != nil {
			return total, fmt.Errorf("reading response: %w", readErr)
		}
	}
}

// stallReader pushes the stall timer back every time data arrives.
type stallReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}

	return n, err
}

func stalled(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrExportStalled)
}

func isMissingStructure(err error, table string) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		return false
	}

	return strings.Contains(se.Body, fmt.Sprintf("Data-structure %s does not exist or does not correspond to a data structure", table))
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
