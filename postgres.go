package bqetl

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/xerrors"
)

// PostgresDestination inserts records into a Postgres table, one INSERT per
// record, outside any explicit transaction.
type PostgresDestination struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewPostgresDestination connects to url and targets table, which may be
// schema qualified ("schema.table").
func NewPostgresDestination(ctx context.Context, url, table string) (*PostgresDestination, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, xerrors.Errorf("failed to build postgres pool: %w", err)
	}

	return &PostgresDestination{pool: pool, table: pgx.Identifier(strings.Split(table, "."))}, nil
}

// InsertOne implements Destination.
func (d *PostgresDestination) InsertOne(ctx context.Context, r ProjectedRecord) ([]ErrorDescriptor, error) {
	query, args := insertStatement(d.table, r)
	_, err := d.pool.Exec(ctx, query, args...)
	return pgErrors(err)
}

// Close closes the pool.
func (d *PostgresDestination) Close() {
	d.pool.Close()
}

func insertStatement(table pgx.Identifier, r ProjectedRecord) (string, []any) {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	if len(cols) == 0 {
		return "INSERT INTO " + table.Sanitize() + " DEFAULT VALUES", nil
	}

	names := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = pgx.Identifier{c}.Sanitize()
		params[i] = "$" + strconv.Itoa(i+1)
		if v := r[c]; v.Valid {
			args[i] = v.StringVal
		}
	}

	query := "INSERT INTO " + table.Sanitize() +
		" (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"

	return query, args
}

// pgErrors turns errors caused by the record's content into descriptors and
// returns any other error as is.
func pgErrors(err error) ([]ErrorDescriptor, error) {
	if err == nil {
		return nil, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || !isRecordError(pgErr.Code) {
		return nil, err
	}

	location := pgErr.ColumnName
	if location == "" {
		location = pgErr.ConstraintName
	}

	return []ErrorDescriptor{{Reason: pgErr.Code, Location: location, Message: pgErr.Message}}, nil
}

func isRecordError(code string) bool {
	return pgerrcode.IsIntegrityConstraintViolation(code) ||
		pgerrcode.IsDataException(code) ||
		code == pgerrcode.UndefinedColumn
}
