package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/navikt/mindar/pkg/config"
	"github.com/navikt/mindar/pkg/mindar"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"
)

type command struct {
	args        string
	description string
	run         func(c *CLI, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"create":        {"[flags]", "create a new mindar", (*CLI).create},
	"list":          {"[flags]", "list your mindars", (*CLI).list},
	"delete":        {"<schema>", "delete a mindar", (*CLI).delete},
	"refresh-stats": {"<schema>", "refresh the statistics of a mindar", (*CLI).refreshStats},
	"tables":        {"<schema>", "list the tables of a mindar", (*CLI).tables},
	"add-table":     {"<schema> <table>", "add a table to a mindar", (*CLI).addTable},
	"drop-table":    {"<schema> <table>", "drop a table from a mindar", (*CLI).dropTable},
	"import":        {"<schema> <table> <file.csv>", "import CSV records into a table", (*CLI).importCSV},
	"update-status": {"<schema> <table> [flags]", "bulk update the status of records", (*CLI).updateStatus},
	"export":        {"<schema> <table>... [flags]", "export tables to CSV files", (*CLI).exportTables},
	"submissions":   {"<schema>", "show the submission of every table", (*CLI).submissions},
}

func usage() {
	out := os.Stderr

	fmt.Fprintf(out, "Usage: %s [--config config.yaml] <command> [args]\n\nCommands:\n", os.Args[0])

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(out, "  %-14s %-30s %s\n", name, commands[name].args, commands[name].description)
	}

	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

type CLI struct {
	client *mindar.Client
	export config.Export
	stdout io.Writer
	stderr io.Writer
}

func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command, expected one of: %s", commandNames())
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of: %s", args[0], commandNames())
	}

	return cmd.run(c, ctx, args[1:])
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

func (c *CLI) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func parse(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	if n >= 0 && fs.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", fs.Name(), n, fs.NArg())
	}

	return fs.Args(), nil
}

func (c *CLI) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	password := fs.String("password", "", "password for the new mindar database user")
	packageID := fs.Int64("package-id", 0, "populate the mindar from this package")
	nickName := fs.String("nick-name", "", "name of the mindar")

	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	m, err := c.client.CreateMindar(ctx, mindar.CreateMindarRequest{
		Password:  *password,
		PackageID: *packageID,
		NickName:  *nickName,
	})
	if err != nil {
		return err
	}

	return c.print(m)
}

func (c *CLI) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	includeDeleted := fs.Bool("include-deleted", false, "include deleted mindars")

	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	mindars, err := c.client.ListMindars(ctx, *includeDeleted)
	if err != nil {
		return err
	}

	return c.print(mindars)
}

func (c *CLI) delete(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("delete", flag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}

	return c.client.DeleteMindar(ctx, pos[0])
}

func (c *CLI) refreshStats(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("refresh-stats", flag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}

	return c.client.RefreshStats(ctx, pos[0])
}

func (c *CLI) tables(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("tables", flag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}

	tables, err := c.client.ListTables(ctx, pos[0])
	if err != nil {
		return err
	}

	return c.print(tables)
}

func (c *CLI) addTable(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("add-table", flag.ContinueOnError), args, 2)
	if err != nil {
		return err
	}

	return c.client.AddTable(ctx, pos[0], pos[1])
}

func (c *CLI) dropTable(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("drop-table", flag.ContinueOnError), args, 2)
	if err != nil {
		return err
	}

	return c.client.DropTable(ctx, pos[0], pos[1])
}

func (c *CLI) importCSV(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("import", flag.ContinueOnError), args, 3)
	if err != nil {
		return err
	}

	return c.client.ImportCSVFile(ctx, pos[0], pos[1], pos[2])
}

func (c *CLI) updateStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update-status", flag.ContinueOnError)
	validationUUID := fs.String("validation-uuid", "", "select records by validation result")
	submissionPackageUUID := fs.String("submission-package-uuid", "", "select records by submission package")
	submissionID := fs.String("submission-id", "", "select records by submission")

	pos, err := parse(fs, args, 2)
	if err != nil {
		return err
	}

	sel, err := mindar.NewStatusSelector(*validationUUID, *submissionPackageUUID, *submissionID)
	if err != nil {
		return err
	}

	return c.client.UpdateStatus(ctx, pos[0], pos[1], sel)
}

func (c *CLI) exportTables(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("dir", c.export.RootDir, "directory to write <table>.csv files to")
	includeRowID := fs.Bool("include-row-id", c.export.IncludeRowID, "include the internal table row id column")
	addHeader := fs.Bool("add-header", c.export.AddHeader, "write a name,version line before the records")
	noProgress := fs.Bool("no-progress", false, "do not show a progress bar")

	pos, err := parse(fs, args, -1)
	if err != nil {
		return err
	}

	if len(pos) < 2 {
		return fmt.Errorf("export: expected a schema and at least one table")
	}

	schema := c.client.Schema(pos[0])

	for _, table := range pos[1:] {
		opts := mindar.ExportOptions{
			RootDir:      *dir,
			IncludeRowID: *includeRowID,
			AddHeader:    *addHeader,
		}

		var bar *progressbar.ProgressBar
		if !*noProgress {
			bar = mindar.NewProgressBar(c.stderr, table)
			opts.Progress = bar
		}

		path, err := schema.Export(ctx, table, opts)

		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(c.stderr)
		}

		if err != nil {
			return err
		}

		fmt.Fprintln(c.stdout, path)
	}

	return nil
}

func (c *CLI) submissions(ctx context.Context, args []string) error {
	pos, err := parse(flag.NewFlagSet("submissions", flag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}

	submissions, err := c.client.Submissions(ctx, pos[0])
	if err != nil {
		return err
	}

	return c.print(submissions)
}
