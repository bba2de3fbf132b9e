package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/brunobiangulo/gosimulado/question"
)

// DefaultBatchSize is the number of rows sent per INSERT statement.
const DefaultBatchSize = 500

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink replaces the contents of a Postgres table with a row set.
// The table must already exist with the Header columns; ha_imagem is a
// boolean there, the rest text or integer.
type PostgresSink struct {
	DB        *sql.DB
	Table     string
	BatchSize int
}

// OpenPostgres connects to dsn and checks the connection.
func OpenPostgres(ctx context.Context, dsn, table string, batchSize int) (*PostgresSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresSink{DB: db, Table: table, BatchSize: batchSize}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.DB.Close()
}

// Replace deletes every row of the table and inserts rows in batches, all in
// one transaction: readers see either the old set or the new one.
func (s *PostgresSink) Replace(ctx context.Context, rows []question.Row) error {
	if !tableName.MatchString(s.Table) {
		return fmt.Errorf("invalid table name %q", s.Table)
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	start := time.Now()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.Table); err != nil {
		return fmt.Errorf("clearing %s: %w", s.Table, err)
	}

	for lo := 0; lo < len(rows); lo += batch {
		hi := min(lo+batch, len(rows))
		q, args := insertStatement(s.Table, rows[lo:hi])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("inserting rows %d-%d: %w", lo+1, hi, err)
		}
		slog.Debug("postgres: batch inserted", "table", s.Table, "from", lo+1, "to", hi)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("postgres: table replaced", "table", s.Table, "rows", len(rows),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// insertStatement builds a multi-row INSERT with $n placeholders.
func insertStatement(table string, rows []question.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(Header, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(Header))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range Header {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", i*len(Header)+j+1)
		}
		b.WriteByte(')')
		args = append(args,
			r.ID, r.SourceID, r.Theme, r.Statement,
			r.A, r.B, r.C, r.D,
			r.CorrectAnswer, r.HasImage, r.Comment, r.ExamNumber,
		)
	}
	return b.String(), args
}
