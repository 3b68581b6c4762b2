// Package conntest provides in-memory stand-ins for connection.Pool and
// pgx.Rows so that dispatch and topology code can be tested without a server.
package conntest

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ pgx.Rows = (*Rows)(nil)

// Rows is a pgx.Rows over a fixed set of values.
type Rows struct {
	cols   []string
	values [][]any
	idx    int
	closed bool
	err    error
}

// NewRows returns rows with the given column names and values.
func NewRows(cols []string, values ...[]any) *Rows {
	return &Rows{cols: cols, values: values, idx: -1}
}

// WithErr makes Err report err once iteration finishes.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag("SELECT " + strconv.Itoa(len(r.values)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	if r.idx >= len(r.values) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.values) {
		return fmt.Errorf("conntest: scan called without a current row")
	}
	return scanInto(r.values[r.idx], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.values) {
		return nil, fmt.Errorf("conntest: values called without a current row")
	}
	return r.values[r.idx], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

// Row is a pgx.Row over the first row of a Rows.
type Row struct {
	rows *Rows
	err  error
}

// Scan implements pgx.Row.
func (r Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// Call records one statement sent to a Pool.
type Call struct {
	SQL  string
	Args []any
}

// Handler answers a statement. It must return fresh Rows on every call.
type Handler func(ctx context.Context, sql string, args []any) (*Rows, error)

// Pool is a fake connection.Pool.
type Pool struct {
	Handler Handler

	mu     sync.Mutex
	calls  []Call
	closed int
}

// NewPool returns a Pool answering with h.
func NewPool(h Handler) *Pool {
	return &Pool{Handler: h}
}

// Static returns a handler that always answers with the given rows.
func Static(cols []string, values ...[]any) Handler {
	return func(context.Context, string, []any) (*Rows, error) {
		return NewRows(cols, values...), nil
	}
}

// Failing returns a handler that always fails with err.
func Failing(err error) Handler {
	return func(context.Context, string, []any) (*Rows, error) {
		return nil, err
	}
}

func (p *Pool) record(sql string, args []any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{SQL: sql, Args: args})
}

// Query implements connection.Pool.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.record(sql, args)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := p.Handler(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryRow implements connection.Pool.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.record(sql, args)
	if err := ctx.Err(); err != nil {
		return Row{err: err}
	}
	rows, err := p.Handler(ctx, sql, args)
	if err != nil {
		return Row{err: err}
	}
	return Row{rows: rows}
}

// Close implements connection.Pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

// Calls returns the statements received so far.
func (p *Pool) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Closed reports how many times Close was called.
func (p *Pool) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func scanInto(src []any, dest []any) error {
	if len(src) != len(dest) {
		return fmt.Errorf("conntest: %d values but %d destinations", len(src), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], src[i]); err != nil {
			return fmt.Errorf("conntest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dst, src any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", dst)
	}
	ev := dv.Elem()
	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(ev.Type()):
		ev.Set(sv)
	case ev.Kind() == reflect.Pointer && sv.Type().AssignableTo(ev.Type().Elem()):
		p := reflect.New(ev.Type().Elem())
		p.Elem().Set(sv)
		ev.Set(p)
	case isNumber(sv.Kind()) && isNumber(ev.Kind()):
		ev.Set(sv.Convert(ev.Type()))
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
