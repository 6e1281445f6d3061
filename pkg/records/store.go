// Package records implements the admin record store: list, read, create,
// update, toggle, duplicate and delete over a fixed registry of tables.
//
// Identifiers come from the registry and are quoted with pgx.Identifier;
// values are always bound as parameters.
package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/admingate/pkg/clients/postgres"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/admingate/pkg/records"

// idColumn is the primary key of every admin table.
const idColumn = "id"

// Querier is the subset of [postgres.Client] the store needs. pgxmock
// pools satisfy it too.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Option configures a [Store].
type Option func(*Store)

// WithTables replaces the default table registry.
func WithTables(tables ...*Table) Option {
	return func(s *Store) { s.tables = NewTables(tables...) }
}

// WithClock overrides the time source used when duplicating rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store reads and writes admin records over a registry of [Table]s.
//
// A Store is safe for concurrent use by multiple goroutines; it holds no
// mutable state and every call is a single statement, or a read followed by
// an insert for Duplicate. Build one with [NewStore] over a
// [postgres.Client] in production or a pgxmock pool in tests.
//
// # Tables and columns
//
// Every operation names a table, which must be in the registry. Writes only
// touch the table's writable columns; unknown keys in a payload are dropped
// silently and values are coerced per column kind before they are bound.
// Table and column names are quoted identifiers taken from the registry,
// never from the request.
//
// # Errors
//
// Every error is an *sserr.Error:
//   - [sserr.CodeNotFoundResource] for a table outside the registry.
//   - [sserr.CodeValidationRequired] for a blank id or a missing required
//     column.
//   - [sserr.CodeNotFound] when the addressed row does not exist.
//   - The postgres client's classification for database failures, for
//     example [sserr.CodeConflict] on a unique violation.
//
// # Usage
//
//	store := records.NewStore(db)
//	rec, err := store.Create(ctx, "clientes", records.Record{"nome": "Cafe Central"})
//	if err != nil {
//	    return err
//	}
//	rec, err = store.Toggle(ctx, "clientes", fmt.Sprint(rec["id"]))
type Store struct {
	db     Querier
	tables Tables
	tracer trace.Tracer
	now    func() time.Time
}

// NewStore returns a store over db serving [DefaultTables] unless
// overridden.
func NewStore(db Querier, opts ...Option) *Store {
	s := &Store{
		db:     db,
		tables: NewTables(DefaultTables()...),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tables returns the registered table names.
func (s *Store) Tables() []string {
	return s.tables.Names()
}

// Table returns the named table or an [sserr.CodeNotFoundResource] error.
func (s *Store) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, sserr.Newf(sserr.CodeNotFoundResource, "records: unknown table %q", name)
	}
	return t, nil
}

// List returns the table's rows in its fixed order. Filters on columns the
// table does not declare, and empty filter values, are ignored.
func (s *Store) List(ctx context.Context, table string, filters map[string]string) (records []Record, err error) {
	ctx, span := s.startSpan(ctx, "List", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT * FROM %s", quote(t.Name))
	for _, col := range t.Filters {
		v := strings.TrimSpace(filters[col])
		if v == "" {
			continue
		}
		if len(args) == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, v)
		fmt.Fprintf(&sb, "%s = $%d", quote(col), len(args))
	}
	if t.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", quote(t.OrderBy))
		if t.Descending {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classify(err, "records: list failed")
	}
	records, err = pgx.CollectRows(rows, rowToRecord)
	if err != nil {
		return nil, classify(err, "records: list failed")
	}
	if records == nil {
		records = []Record{}
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

// Get returns one row by id, or [sserr.CodeNotFound] when there is none.
func (s *Store) Get(ctx context.Context, table, id string) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "Get", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	return s.one(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", quote(t.Name), quote(idColumn)), id)
}

// Create inserts a row from the table's writable columns in values and
// returns it. Required columns must be present and non-blank.
func (s *Store) Create(ctx context.Context, table string, values Record) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "Create", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if missing := t.missingRequired(values); len(missing) > 0 {
		return nil, sserr.Newf(sserr.CodeValidationRequired,
			"records: %s requires %s", t.Name, strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}
	return s.insert(ctx, t, values)
}

// Update sets the writable columns present in values on row id and returns
// the row. An update naming no writable column returns the row unchanged.
func (s *Store) Update(ctx context.Context, table, id string, values Record) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "Update", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}

	cols, args := t.writable(values)
	if len(cols) == 0 {
		return s.one(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", quote(t.Name), quote(idColumn)), id)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quote(c), i+1)
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		quote(t.Name), strings.Join(sets, ", "), quote(idColumn), len(args))
	return s.one(ctx, sql, args...)
}

// UpdateByKey sets the writable columns present in values on the row whose
// [Table.KeyColumn] equals key, and returns the row. The key column itself
// is never written, so a payload repeating it is accepted and the key
// cannot be changed through this path. Values are coerced per column kind:
// emails are trimmed and lower-cased, social handles lose leading "@".
//
// Error codes returned:
//   - [sserr.CodeNotFoundResource]: unknown table
//   - [sserr.CodeValidation]: the table has no key column
//   - [sserr.CodeValidationRequired]: blank key
//   - [sserr.CodeNotFound]: no row has that key
func (s *Store) UpdateByKey(ctx context.Context, table, key string, values Record) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "UpdateByKey", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if t.KeyColumn == "" {
		return nil, sserr.Validationf("records: %s has no key column", t.Name)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, sserr.Newf(sserr.CodeValidationRequired, "records: %s is required", t.KeyColumn)
	}

	var (
		sets []string
		args []any
	)
	cols, vals := t.writable(values)
	for i, c := range cols {
		if c == t.KeyColumn {
			continue
		}
		args = append(args, vals[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(c), len(args)))
	}
	if len(sets) == 0 {
		return s.one(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", quote(t.Name), quote(t.KeyColumn)), key)
	}

	args = append(args, key)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		quote(t.Name), strings.Join(sets, ", "), quote(t.KeyColumn), len(args))
	return s.one(ctx, sql, args...)
}

// Toggle flips the table's toggle column on row id in one statement and
// returns the row. Tables without a toggle column fail with
// [sserr.CodeValidation].
func (s *Store) Toggle(ctx context.Context, table, id string) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "Toggle", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	if t.ToggleColumn == "" {
		return nil, sserr.Validationf("records: %s cannot be toggled", t.Name)
	}

	col := quote(t.ToggleColumn)
	sql := fmt.Sprintf("UPDATE %s SET %s = NOT %s WHERE %s = $1 RETURNING *",
		quote(t.Name), col, col, quote(idColumn))
	return s.one(ctx, sql, id)
}

// Duplicate inserts a copy of row id and returns the new row. The table's
// Copy function decides what the copy carries; without one the copy takes
// every writable column of the source.
func (s *Store) Duplicate(ctx context.Context, table, id string) (rec Record, err error) {
	ctx, span := s.startSpan(ctx, "Duplicate", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}

	src, err := s.one(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", quote(t.Name), quote(idColumn)), id)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, t, t.duplicate(src, s.now()))
}

// Delete removes row id. Deleting a missing row is [sserr.CodeNotFound].
func (s *Store) Delete(ctx context.Context, table, id string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", table)
	defer func() { finishSpan(span, err) }()

	t, err := s.Table(table)
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quote(t.Name), quote(idColumn)), id)
	if err != nil {
		return classify(err, "records: delete failed")
	}
	if tag.RowsAffected() == 0 {
		return sserr.NotFoundf("records: %s %s not found", t.Name, id)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, t *Table, values Record) (Record, error) {
	cols, args := t.writable(values)
	if len(cols) == 0 {
		return s.one(ctx, fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", quote(t.Name)))
	}

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quote(t.Name), strings.Join(quoted, ", "), strings.Join(params, ", "))
	return s.one(ctx, sql, args...)
}

// one runs a statement expected to return exactly one row.
func (s *Store) one(ctx context.Context, sql string, args ...any) (Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "records: query failed")
	}
	rec, err := pgx.CollectOneRow(rows, rowToRecord)
	if err != nil {
		return nil, classify(err, "records: row not found or unreadable")
	}
	return rec, nil
}

func (s *Store) startSpan(ctx context.Context, op, table string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "records."+op)
	span.SetAttributes(attribute.String("records.table", table))
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func rowToRecord(row pgx.CollectableRow) (Record, error) {
	m, err := pgx.RowToMap(row)
	return Record(m), err
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return sserr.New(sserr.CodeValidationRequired, "records: id is required")
	}
	return nil
}

// classify keeps errors already classified by the postgres client and
// classifies the rest.
func classify(err error, message string) error {
	if e, ok := sserr.AsError(err); ok {
		return e
	}
	return postgres.WrapError(err, message)
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
