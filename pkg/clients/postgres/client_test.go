package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestNewFromPool_DatabaseName(t *testing.T) {
	mock := newMock(t)

	tests := []struct {
		cfg  *Config
		want string
	}{
		{nil, ""},
		{&Config{Database: "admin"}, "admin"},
		{&Config{URI: "postgres://u:p@db:5432/shop?sslmode=disable", Database: "ignored"}, "shop"},
	}
	for _, tt := range tests {
		client := NewFromPool(mock, tt.cfg)
		if client.databaseName != tt.want {
			t.Errorf("databaseName = %q, want %q", client.databaseName, tt.want)
		}
		if client.config == nil || client.tracer == nil {
			t.Error("client not fully initialized")
		}
	}
}

func TestClient_Query(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT \* FROM "categorias"`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "nome"}).AddRow(int64(1), "Bebidas"))

	client := NewFromPool(mock, &Config{Database: "admin"})
	rows, err := client.Query(context.Background(), `SELECT * FROM "categorias"`)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	got, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		t.Fatalf("CollectRows() error: %v", err)
	}
	if len(got) != 1 || got[0]["nome"] != "Bebidas" {
		t.Errorf("rows = %v, want one row named Bebidas", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClient_QueryErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"generic", errors.New("connection reset"), sserr.CodeInternalDatabase},
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), sserr.CodeTimeoutDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectQuery("SELECT 1").WillReturnError(tt.err)

			_, err := NewFromPool(mock, nil).Query(context.Background(), "SELECT 1")
			if got := sserr.GetCode(err); got != tt.want {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestClient_QueryRow(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT "nome" FROM "clientes"`).
		WithArgs("42").
		WillReturnError(pgx.ErrNoRows)

	var name string
	err := NewFromPool(mock, nil).
		QueryRow(context.Background(), `SELECT "nome" FROM "clientes" WHERE "id" = $1`, "42").
		Scan(&name)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("Scan() error = %v, want pgx.ErrNoRows", err)
	}
	if code := WrapError(err, "lookup").Code; code != sserr.CodeNotFound {
		t.Errorf("code = %q, want %q", code, sserr.CodeNotFound)
	}
}

func TestClient_Exec(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM "produtos"`).
		WithArgs("7").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM "categorias"`).
		WithArgs("3").
		WillReturnError(&pgconn.PgError{Code: sqlStateForeignKeyViolation})

	client := NewFromPool(mock, nil)

	tag, err := client.Exec(context.Background(), `DELETE FROM "produtos" WHERE "id" = $1`, "7")
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Errorf("RowsAffected = %d, want 1", tag.RowsAffected())
	}

	_, err = client.Exec(context.Background(), `DELETE FROM "categorias" WHERE "id" = $1`, "3")
	if !sserr.IsValidation(err) {
		t.Errorf("Exec() error = %v, want validation error", err)
	}
}

func TestClient_Health(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("server closed the connection"))

	client := NewFromPool(mock, nil)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = client.Health(ctx)
	if sserr.GetCode(err) != sserr.CodeUnavailableDependency {
		t.Errorf("Health() code = %q, want %q", sserr.GetCode(err), sserr.CodeUnavailableDependency)
	}
	if !sserr.IsRetryable(err) {
		t.Error("health failures should be retryable")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClient_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	mock.ExpectClose()

	NewFromPool(mock, nil).Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"unique", &pgconn.PgError{Code: sqlStateUniqueViolation, ConstraintName: "clientes_email_key"}, sserr.CodeConflict},
		{"not null", &pgconn.PgError{Code: sqlStateNotNullViolation}, sserr.CodeValidation},
		{"check", &pgconn.PgError{Code: sqlStateCheckViolation}, sserr.CodeValidation},
		{"bad input", &pgconn.PgError{Code: sqlStateInvalidText}, sserr.CodeValidation},
		{"unknown column", &pgconn.PgError{Code: sqlStateUndefinedColumn}, sserr.CodeValidationFormat},
		{"other sqlstate", &pgconn.PgError{Code: "53300"}, sserr.CodeInternalDatabase},
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), sserr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err, "op")
			if got.Code != tt.want {
				t.Errorf("code = %q, want %q", got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("wrapped error does not unwrap to its cause")
			}
		})
	}

	if WrapError(nil, "op") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	if got := WrapError(&pgconn.PgError{Code: sqlStateUniqueViolation, ConstraintName: "c"}, "op"); got.Details["constraint"] != "c" {
		t.Errorf("details = %v, want constraint c", got.Details)
	}
}
