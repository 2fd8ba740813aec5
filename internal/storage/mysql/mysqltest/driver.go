// Package mysqltest provides a scripted database/sql driver for tests of the
// MySQL-backed stores. Each expected operation is consumed in order and the
// SQL text is compared after whitespace normalisation.
package mysqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

func (o operationType) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[o]
}

// Operation 是一次预期的数据库调用。
type Operation struct {
	typ    operationType
	query  string
	result Result
	rows   Rows
	err    error
}

// WithError 让该操作返回 err。
func (o Operation) WithError(err error) Operation {
	o.err = err
	return o
}

// Result 是 Exec 的返回值。
type Result struct {
	LastID   int64
	Affected int64
}

func (r Result) LastInsertId() (int64, error) { return r.LastID, nil }
func (r Result) RowsAffected() (int64, error) { return r.Affected, nil }

// Rows 是 Query 返回的数据。
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// Exec 预期一次写操作。query 为空时不校验 SQL。
func Exec(query string, result Result) Operation {
	return Operation{typ: opExec, query: query, result: result}
}

// Query 预期一次查询。
func Query(query string, rows Rows) Operation {
	return Operation{typ: opQuery, query: query, rows: rows}
}

// Begin 预期开启事务。
func Begin() Operation { return Operation{typ: opBegin} }

// Commit 预期提交事务。
func Commit() Operation { return Operation{typ: opCommit} }

// Rollback 预期回滚事务。
func Rollback() Operation { return Operation{typ: opRollback} }

// Driver 按顺序消费预期操作，并记录每次调用的参数。
type Driver struct {
	ops []Operation
	idx int32

	mu   sync.Mutex
	args [][]driver.Value
}

var driverSeq atomic.Int32

// Open 注册一个新的脚本驱动并返回连接。
func Open(t *testing.T, ops ...Operation) (*sql.DB, *Driver) {
	t.Helper()

	drv := &Driver{ops: ops}
	name := fmt.Sprintf("mysqltest-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

// AssertConsumed 校验所有预期操作都已执行。
func (d *Driver) AssertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

// Args 返回第 i 次 Exec/Query 调用的参数。
func (d *Driver) Args(i int) []driver.Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.args) {
		return nil
	}
	return d.args[i]
}

// Open 实现 driver.Driver。
func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

func (d *Driver) next(expected operationType, query string) (*Operation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s operation", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected %s operation, got %s", op.typ, expected)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" {
		want := NormalizeSQL(op.query)
		got := NormalizeSQL(query)
		if want != got {
			return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
		}
	}
	return op, nil
}

func (d *Driver) record(args []driver.NamedValue) {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	d.mu.Lock()
	d.args = append(d.args, values)
	d.mu.Unlock()
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &tx{driver: c.driver}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	c.driver.record(args)
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	c.driver.record(args)
	if op.err != nil {
		return nil, op.err
	}
	return &rows{columns: op.rows.Columns, values: op.rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

// CheckNamedValue 接受任意参数类型，保留原值供断言。
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

type tx struct {
	driver *Driver
}

func (t *tx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *tx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

// NormalizeSQL 折叠空白，便于比较 SQL 文本。
func NormalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
