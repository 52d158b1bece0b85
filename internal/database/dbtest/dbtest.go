// Package dbtest provides an in-memory stand-in for a pgx pool and its
// transactions. Statements are recorded; results come from the hooks.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one statement sent to the fake
type Call struct {
	SQL  string
	Args []any
}

// DB satisfies database.TxBeginner and the repositories' pool interfaces.
// Unset hooks answer Exec with one affected row, QueryRow with pgx.ErrNoRows
// and Query with no rows.
type DB struct {
	mu sync.Mutex

	BeginErr  error
	CommitErr error
	// BatchErr is returned by Close of every SendBatch result
	BatchErr error

	ExecFunc     func(sql string, args []any) (pgconn.CommandTag, error)
	QueryRowFunc func(sql string, args []any) pgx.Row
	QueryFunc    func(sql string, args []any) (pgx.Rows, error)

	Calls     []Call
	Commits   int
	Rollbacks int
}

func (d *DB) record(sql string, args []any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
}

// Statements returns the SQL of every recorded call, in order
func (d *DB) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.Calls))
	for _, c := range d.Calls {
		out = append(out, c.SQL)
	}
	return out
}

// CallsTo returns the recorded calls of one statement
func (d *DB) CallsTo(sql string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if c.SQL == sql {
			out = append(out, c)
		}
	}
	return out
}

func (d *DB) Begin(context.Context) (pgx.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	return &Tx{db: d}, nil
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.record(sql, args)
	if d.ExecFunc != nil {
		return d.ExecFunc(sql, args)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.record(sql, args)
	if d.QueryRowFunc != nil {
		return d.QueryRowFunc(sql, args)
	}
	return Row{Err: pgx.ErrNoRows}
}

func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.record(sql, args)
	if d.QueryFunc != nil {
		return d.QueryFunc(sql, args)
	}
	return &Rows{}, nil
}

// Tx routes statements to its DB. Methods the repositories never call are
// left to the embedded nil interface.
type Tx struct {
	pgx.Tx
	db     *DB
	closed bool
}

func (t *Tx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.db.CommitErr != nil {
		return t.db.CommitErr
	}
	t.db.mu.Lock()
	t.db.Commits++
	t.db.mu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.mu.Lock()
	t.db.Rollbacks++
	t.db.mu.Unlock()
	return nil
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *Tx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		t.db.record(q.SQL, q.Arguments)
	}
	return batchResults{err: t.db.BatchErr}
}

type batchResults struct{ err error }

func (b batchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b batchResults) Query() (pgx.Rows, error)         { return nil, b.err }
func (b batchResults) QueryRow() pgx.Row                { return Row{Err: b.err} }
func (b batchResults) Close() error                     { return b.err }

// Row scans Values into the destinations, which must have matching types
type Row struct {
	Values []any
	Err    error
}

func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

// Rows iterates over Data. Failure is reported by Err after iteration.
type Rows struct {
	Data    [][]any
	Failure error
	pos     int
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.Failure }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.pos >= len(r.Data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 {
		return errors.New("dbtest: Scan called before Next")
	}
	return assign(r.Data[r.pos-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.pos == 0 {
		return nil, errors.New("dbtest: Values called before Next")
	}
	return r.Data[r.pos-1], nil
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		val := reflect.ValueOf(v)
		if !val.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("dbtest: column %d: cannot assign %T to %s", i, v, target.Type())
		}
		target.Set(val)
	}
	return nil
}

// Tag builds a command tag reporting n affected rows
func Tag(op string, n int64) pgconn.CommandTag {
	if op == "INSERT" {
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", n))
	}
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", op, n))
}
