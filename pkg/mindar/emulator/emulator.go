// Package emulator serves an in-memory imitation of the mindar API, good
// enough to exercise the client end to end.
package emulator

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"
	"github.com/lithammer/shortuuid/v4"
	"github.com/navikt/mindar/pkg/errs"
	"github.com/navikt/mindar/pkg/mindar"
	"github.com/navikt/mindar/pkg/requestlogger"
	"github.com/rs/zerolog"
)

const (
	StatusActive  = "ACTIVE"
	StatusDeleted = "DELETED"

	RowIDColumn = "table_row_id"
)

type Table struct {
	Name    string
	Header  []string
	Rows    [][]string
	Updates []map[string]string
}

type Schema struct {
	Mindar      mindar.Mindar
	Password    string
	Tables      map[string]*Table
	Submissions mindar.SubmissionsResponse
	StatsAt     time.Time
}

type Emulator struct {
	router *chi.Mux

	mu      sync.Mutex
	schemas map[string]*Schema
	// structures are the data-structures that can be exported, all if nil
	structures map[string]bool

	username string
	password string

	err error

	log zerolog.Logger

	server *httptest.Server
}

func New(log zerolog.Logger) *Emulator {
	e := &Emulator{
		router:  chi.NewRouter(),
		schemas: map[string]*Schema{},
		log:     log,
	}

	e.routes()

	return e
}

func (e *Emulator) routes() {
	e.router.Use(middleware.RequestID, requestlogger.Middleware(e.log), e.basicAuth)

	e.router.Post("/", e.createMindar)
	e.router.Get("/", e.listMindars)
	e.router.Delete("/{schema}/", e.deleteMindar)
	e.router.Post("/{schema}/refresh_stats", e.refreshStats)
	e.router.Get("/{schema}/submissions/", e.getSubmissions)
	e.router.Post("/{schema}/tables", e.addTable)
	e.router.Get("/{schema}/tables/", e.listTables)
	e.router.Delete("/{schema}/tables/{table}/", e.dropTable)
	e.router.Post("/{schema}/tables/{table}/records", e.importRecords)
	e.router.Get("/{schema}/tables/{table}/records", e.exportRecords)
	e.router.Post("/{schema}/tables/{table}/records/bulkUpdate", e.bulkUpdate)

	e.router.NotFound(e.notFound)
}

func (e *Emulator) Run() string {
	e.log.Info().Msg("starting mindar emulator")

	e.server = httptest.NewServer(e)

	return e.server.URL
}

func (e *Emulator) Close() {
	if e.server != nil {
		e.server.Close()
	}
}

func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.schemas = map[string]*Schema{}
	e.structures = nil
	e.err = nil
}

// SetCredentials enables basic auth checks for all requests.
func (e *Emulator) SetCredentials(username, password string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.username = username
	e.password = password
}

func (e *Emulator) credentials() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.username, e.password
}

// SetError makes the next request fail with an internal server error.
func (e *Emulator) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.err = err
}

// SetStructures limits exports to the given data-structures.
func (e *Emulator) SetStructures(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.structures = map[string]bool{}
	for _, n := range names {
		e.structures[n] = true
	}
}

func (e *Emulator) SetSubmissions(schema string, s mindar.SubmissionsResponse) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sc, ok := e.schemas[schema]
	if !ok {
		return fmt.Errorf("schema %s does not exist", schema)
	}

	sc.Submissions = s

	return nil
}

func (e *Emulator) GetSchema(schema string) (*Schema, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sc, ok := e.schemas[schema]

	return sc, ok
}

func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

func (e *Emulator) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password := e.credentials()
		if username == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 || subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="mindar"`)
			errs.HTTPErrorResponse(w, e.log, errs.E(errs.Unauthenticated, errs.Op("emulator.basicAuth"), errs.Str("invalid credentials")))

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (e *Emulator) notFound(w http.ResponseWriter, r *http.Request) {
	request, err := httputil.DumpRequest(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	e.log.Warn().Str("request", string(request)).Msg("not found")

	http.Error(w, "not found", http.StatusNotFound)
}

// injectedError reports and clears an error set with SetError. Must be
// called with the lock held.
func (e *Emulator) injectedError(w http.ResponseWriter) bool {
	if e.err == nil {
		return false
	}

	http.Error(w, e.err.Error(), http.StatusInternalServerError)
	e.err = nil

	return true
}

func (e *Emulator) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		e.log.Error().Err(err).Msg("encoding response")
	}
}

// activeSchema looks up a schema that has not been deleted. Must be called
// with the lock held.
func (e *Emulator) activeSchema(op errs.Op, name string) (*Schema, error) {
	sc, ok := e.schemas[name]
	if !ok || sc.Mindar.Status == StatusDeleted {
		return nil, errs.E(errs.NotExist, op, errs.Parameter("schema"), fmt.Errorf("mindar %s does not exist", name))
	}

	return sc, nil
}

func (e *Emulator) table(op errs.Op, schema, name string) (*Table, error) {
	sc, err := e.activeSchema(op, schema)
	if err != nil {
		return nil, err
	}

	t, ok := sc.Tables[name]
	if !ok {
		return nil, errs.E(errs.NotExist, op, errs.Parameter("table"), fmt.Errorf("table %s does not exist in %s", name, schema))
	}

	return t, nil
}

func (e *Emulator) createMindar(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.createMindar"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	req := mindar.CreateMindarRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, err))
		return
	}

	if err := req.Validate(); err != nil {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.Validation, op, err))
		return
	}

	schema := "nda_" + strings.ToLower(shortuuid.New())

	name := req.NickName
	if name == "" {
		name = schema
	}

	sc := &Schema{
		Mindar: mindar.Mindar{
			Name:        name,
			Schema:      schema,
			PackageID:   req.PackageID,
			Status:      StatusActive,
			CreatedDate: time.Now().UTC().Format(time.RFC3339),
		},
		Password: req.Password,
		Tables:   map[string]*Table{},
	}

	e.schemas[schema] = sc

	e.writeJSON(w, http.StatusCreated, sc.Mindar)
}

func (e *Emulator) listMindars(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	excludeDeleted := r.URL.Query().Get("excludeDeleted") != "false"

	mindars := []mindar.Mindar{}

	for _, sc := range e.schemas {
		if excludeDeleted && sc.Mindar.Status == StatusDeleted {
			continue
		}

		mindars = append(mindars, sc.Mindar)
	}

	sort.Slice(mindars, func(i, j int) bool {
		return mindars[i].Schema < mindars[j].Schema
	})

	e.writeJSON(w, http.StatusOK, mindars)
}

func (e *Emulator) deleteMindar(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.deleteMindar"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	sc, err := e.activeSchema(op, chi.URLParam(r, "schema"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	sc.Mindar.Status = StatusDeleted

	w.WriteHeader(http.StatusNoContent)
}

func (e *Emulator) refreshStats(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.refreshStats"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	sc, err := e.activeSchema(op, chi.URLParam(r, "schema"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	sc.StatsAt = time.Now()

	w.WriteHeader(http.StatusNoContent)
}

func (e *Emulator) getSubmissions(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.getSubmissions"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	sc, err := e.activeSchema(op, chi.URLParam(r, "schema"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	e.writeJSON(w, http.StatusOK, sc.Submissions)
}

func (e *Emulator) addTable(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.addTable"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	sc, err := e.activeSchema(op, chi.URLParam(r, "schema"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	name := r.URL.Query().Get("table_name")
	if name == "" {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, errs.Parameter("table_name"), errs.Str("missing table name")))
		return
	}

	if _, ok := sc.Tables[name]; ok {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.Exist, op, errs.Parameter("table_name"), fmt.Errorf("table %s already exists", name)))
		return
	}

	sc.Tables[name] = &Table{Name: name}

	e.writeJSON(w, http.StatusCreated, mindar.Table{Name: name})
}

func (e *Emulator) listTables(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.listTables"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	sc, err := e.activeSchema(op, chi.URLParam(r, "schema"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	tables := []mindar.Table{}
	for _, t := range sc.Tables {
		tables = append(tables, mindar.Table{Name: t.Name, RowCount: int64(len(t.Rows))})
	}

	sort.Slice(tables, func(i, j int) bool {
		return tables[i].Name < tables[j].Name
	})

	e.writeJSON(w, http.StatusOK, tables)
}

func (e *Emulator) dropTable(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.dropTable"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	schema, name := chi.URLParam(r, "schema"), chi.URLParam(r, "table")

	if _, err := e.table(op, schema, name); err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	delete(e.schemas[schema].Tables, name)

	w.WriteHeader(http.StatusNoContent)
}

func (e *Emulator) importRecords(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.importRecords"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	t, err := e.table(op, chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, fmt.Errorf("unsupported content type %s", r.Header.Get("Content-Type"))))
		return
	}

	lines, err := gocsv.DefaultCSVReader(r.Body).ReadAll()
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, errs.Parameter("records"), err))
		return
	}

	if len(lines) == 0 {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, errs.Parameter("records"), errs.Str("missing header line")))
		return
	}

	if t.Header == nil {
		t.Header = lines[0]
	} else if strings.Join(t.Header, ",") != strings.Join(lines[0], ",") {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, errs.Parameter("records"), errs.Str("header does not match table columns")))
		return
	}

	t.Rows = append(t.Rows, lines[1:]...)

	e.writeJSON(w, http.StatusOK, map[string]int{"imported": len(lines) - 1})
}

func (e *Emulator) exportRecords(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.exportRecords"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	schema, name := chi.URLParam(r, "schema"), chi.URLParam(r, "table")

	t, err := e.table(op, schema, name)
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	if e.structures != nil && !e.structures[name] {
		http.Error(w, fmt.Sprintf("Data-structure %s does not exist or does not correspond to a data structure", name), http.StatusNotFound)
		return
	}

	includeRowID, _ := strconv.ParseBool(r.URL.Query().Get("include_table_row_id"))

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	cw := gocsv.DefaultCSVWriter(w)

	header := t.Header
	if includeRowID {
		header = append([]string{RowIDColumn}, header...)
	}

	if len(header) > 0 {
		_ = cw.Write(header)
	}

	for i, row := range t.Rows {
		if includeRowID {
			row = append([]string{strconv.Itoa(i + 1)}, row...)
		}

		_ = cw.Write(row)
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		e.log.Error().Err(err).Msg("writing records")
	}
}

func (e *Emulator) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "emulator.bulkUpdate"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.injectedError(w) {
		return
	}

	t, err := e.table(op, chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, err)
		return
	}

	body := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, err))
		return
	}

	if len(body) != 1 {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.InvalidRequest, op, fmt.Errorf("expected exactly one selector, got %d", len(body))))
		return
	}

	t.Updates = append(t.Updates, body)

	e.writeJSON(w, http.StatusOK, map[string]int{"updated": len(t.Rows)})
}
