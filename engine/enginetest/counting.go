// Package enginetest holds test helpers for engine implementations: a
// call-counting decorator and a conformance suite.
package enginetest

import (
	"maps"
	"sync"

	"github.com/Giulio2002/lmkv/engine"
)

// Counting wraps an engine and counts every call that reaches it, keyed by
// "<object>.<method>", for example "txn.Put" or "cursor.Get".
type Counting struct {
	engine.Engine

	mu    sync.Mutex
	calls map[string]int
}

// NewCounting returns a counting decorator for e.
func NewCounting(e engine.Engine) *Counting {
	return &Counting{Engine: e, calls: make(map[string]int)}
}

func (c *Counting) add(op string) {
	c.mu.Lock()
	c.calls[op]++
	c.mu.Unlock()
}

// Calls returns how often op reached the engine.
func (c *Counting) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Total returns the number of calls of any kind.
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Snapshot returns a copy of the per-operation counters.
func (c *Counting) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.calls)
}

// Open implements engine.Engine.
func (c *Counting) Open(path string, cfg engine.Config) (engine.Env, error) {
	c.add("env.Open")
	env, err := c.Engine.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	return &countingEnv{c: c, env: env}, nil
}

type countingEnv struct {
	c   *Counting
	env engine.Env
}

func (e *countingEnv) BeginTxn(parent engine.Txn, flags engine.TxnFlags) (engine.Txn, error) {
	e.c.add("env.BeginTxn")
	if p, ok := parent.(*countingTxn); ok {
		parent = p.txn
	}
	t, err := e.env.BeginTxn(parent, flags)
	if err != nil {
		return nil, err
	}
	return &countingTxn{c: e.c, txn: t}, nil
}

func (e *countingEnv) Copy(dir string) error {
	e.c.add("env.Copy")
	return e.env.Copy(dir)
}

func (e *countingEnv) Sync(force bool) error {
	e.c.add("env.Sync")
	return e.env.Sync(force)
}

func (e *countingEnv) Stat() (engine.Stat, error) {
	e.c.add("env.Stat")
	return e.env.Stat()
}

func (e *countingEnv) Info() (engine.Info, error) {
	e.c.add("env.Info")
	return e.env.Info()
}

func (e *countingEnv) CloseDBI(dbi engine.DBI) {
	e.c.add("env.CloseDBI")
	e.env.CloseDBI(dbi)
}

func (e *countingEnv) Close() error {
	e.c.add("env.Close")
	return e.env.Close()
}

type countingTxn struct {
	c   *Counting
	txn engine.Txn
}

func (t *countingTxn) OpenDBI(name string, flags engine.DBFlags) (engine.DBI, error) {
	t.c.add("txn.OpenDBI")
	return t.txn.OpenDBI(name, flags)
}

func (t *countingTxn) Drop(dbi engine.DBI, del bool) error {
	t.c.add("txn.Drop")
	return t.txn.Drop(dbi, del)
}

func (t *countingTxn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	t.c.add("txn.Get")
	return t.txn.Get(dbi, key)
}

func (t *countingTxn) Put(dbi engine.DBI, key, val []byte, flags engine.PutFlags) error {
	t.c.add("txn.Put")
	return t.txn.Put(dbi, key, val, flags)
}

func (t *countingTxn) Del(dbi engine.DBI, key, val []byte) error {
	t.c.add("txn.Del")
	return t.txn.Del(dbi, key, val)
}

func (t *countingTxn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	t.c.add("txn.OpenCursor")
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &countingCursor{c: t.c, cur: cur}, nil
}

func (t *countingTxn) Stat(dbi engine.DBI) (engine.Stat, error) {
	t.c.add("txn.Stat")
	return t.txn.Stat(dbi)
}

func (t *countingTxn) Commit() error {
	t.c.add("txn.Commit")
	return t.txn.Commit()
}

func (t *countingTxn) Abort() {
	t.c.add("txn.Abort")
	t.txn.Abort()
}

type countingCursor struct {
	c   *Counting
	cur engine.Cursor
}

func (c *countingCursor) Get(key []byte, op engine.CursorOp) ([]byte, []byte, error) {
	c.c.add("cursor.Get")
	return c.cur.Get(key, op)
}

func (c *countingCursor) Put(key, val []byte, flags engine.PutFlags) error {
	c.c.add("cursor.Put")
	return c.cur.Put(key, val, flags)
}

func (c *countingCursor) Del() error {
	c.c.add("cursor.Del")
	return c.cur.Del()
}

func (c *countingCursor) Count() (uint64, error) {
	c.c.add("cursor.Count")
	return c.cur.Count()
}

func (c *countingCursor) Close() {
	c.c.add("cursor.Close")
	c.cur.Close()
}
