// Package mdbxengine runs lmkv on libmdbx through mdbx-go.
//
// libmdbx binds a write transaction to the OS thread that started it, so
// top-level transactions lock the calling goroutine to its thread until they
// end. A transaction must be finished on the goroutine that began it.
package mdbxengine

import (
	"bytes"
	"errors"
	"runtime"
	"syscall"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/Giulio2002/lmkv/engine"
)

// Name is the registry name of this engine.
const Name = "mdbx"

// DataFile is the data file name libmdbx uses inside a store directory.
const DataFile = "mdbx.dat"

func init() {
	engine.Register(Name, Engine{})
}

// Engine opens libmdbx environments.
type Engine struct{}

// Open implements engine.Engine.
func (Engine) Open(path string, cfg engine.Config) (engine.Env, error) {
	label := cfg.Label
	if label == "" {
		label = "lmkv"
	}
	e, err := mdbx.NewEnv(mdbx.Label(label))
	if err != nil {
		return nil, translate(err)
	}
	if err := configure(e, cfg); err != nil {
		e.Close()
		return nil, translate(err)
	}
	if err := e.Open(path, envFlags(cfg.Flags), cfg.Mode); err != nil {
		e.Close()
		return nil, translate(err)
	}
	return &env{e: e, cfg: cfg}, nil
}

func configure(e *mdbx.Env, cfg engine.Config) error {
	if cfg.MaxDBs > 0 {
		if err := e.SetOption(mdbx.OptMaxDB, uint64(cfg.MaxDBs)); err != nil {
			return err
		}
	}
	if cfg.MaxReaders > 0 {
		if err := e.SetOption(mdbx.OptMaxReaders, uint64(cfg.MaxReaders)); err != nil {
			return err
		}
	}
	if cfg.MapSize > 0 {
		if err := e.SetGeometry(-1, -1, int(cfg.MapSize), -1, -1, -1); err != nil {
			return err
		}
	}
	return nil
}

func envFlags(f engine.EnvFlags) uint {
	var flags uint
	if f&engine.NoSubdir != 0 {
		flags |= mdbx.NoSubdir
	}
	if f&engine.ReadOnly != 0 {
		flags |= mdbx.Readonly
	}
	if f&engine.NoMetaSync != 0 {
		flags |= mdbx.NoMetaSync
	}
	// libmdbx folds MAPASYNC into SAFE_NOSYNC.
	if f&(engine.NoSync|engine.MapAsync) != 0 {
		flags |= mdbx.SafeNoSync
	}
	return flags
}

type env struct {
	e   *mdbx.Env
	cfg engine.Config
}

func (e *env) BeginTxn(parent engine.Txn, flags engine.TxnFlags) (engine.Txn, error) {
	var p *mdbx.Txn
	if parent != nil {
		pt, ok := parent.(*txn)
		if !ok {
			return nil, engine.BadTxn
		}
		p = pt.t
	}
	var f uint
	if flags&engine.TxnReadOnly != 0 {
		f = mdbx.Readonly
	}

	locked := p == nil
	if locked {
		runtime.LockOSThread()
	}
	t, err := e.e.BeginTxn(p, f)
	if err != nil {
		if locked {
			runtime.UnlockOSThread()
		}
		return nil, translate(err)
	}
	return &txn{t: t, locked: locked}, nil
}

// Copy writes every table into a new environment in dir. mdbx-go does not
// bind mdbx_env_copy, so tables are copied entry by entry from one read
// snapshot. The copy comes out compacted.
func (e *env) Copy(dir string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	src, err := e.e.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return translate(err)
	}
	defer src.Abort()

	out, err := mdbx.NewEnv(mdbx.Label("lmkv-copy"))
	if err != nil {
		return translate(err)
	}
	defer out.Close()
	if err := configure(out, e.cfg); err != nil {
		return translate(err)
	}
	if err := out.Open(dir, 0, e.cfg.Mode); err != nil {
		return translate(err)
	}
	dst, err := out.BeginTxn(nil, 0)
	if err != nil {
		return translate(err)
	}
	if err := copyTables(src, dst); err != nil {
		dst.Abort()
		return translate(err)
	}
	_, err = dst.Commit()
	return translate(err)
}

// copyTables copies the main table and every named table of src into dst.
// Named tables live as records of the main table; a record that does not
// open as a table is plain data.
func copyTables(src, dst *mdbx.Txn) error {
	root, err := src.OpenRoot(0)
	if err != nil {
		return err
	}
	dstRoot, err := dst.OpenRoot(mdbx.Create)
	if err != nil {
		return err
	}
	cur, err := src.OpenCursor(root)
	if err != nil {
		return err
	}
	defer cur.Close()

	var tables []string
	for k, v, err := cur.Get(nil, nil, mdbx.First); ; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if mdbx.IsNotFound(err) {
			break
		}
		if err != nil {
			return err
		}
		_, err = src.OpenDBISimple(string(k), 0)
		switch {
		case err == nil:
			tables = append(tables, string(k))
		case mdbx.IsErrno(err, mdbx.Incompatible):
			if err := dst.Put(dstRoot, k, v, 0); err != nil {
				return err
			}
		default:
			return err
		}
	}

	for _, name := range tables {
		dbi, err := src.OpenDBISimple(name, 0)
		if err != nil {
			return err
		}
		flags, err := src.Flags(dbi)
		if err != nil {
			return err
		}
		to, err := dst.OpenDBISimple(name, mdbx.Create|flags&tableFlags)
		if err != nil {
			return err
		}
		if err := copyTable(src, dbi, dst, to); err != nil {
			return err
		}
	}
	return nil
}

func copyTable(src *mdbx.Txn, from mdbx.DBI, dst *mdbx.Txn, to mdbx.DBI) error {
	cur, err := src.OpenCursor(from)
	if err != nil {
		return err
	}
	defer cur.Close()
	for k, v, err := cur.Get(nil, nil, mdbx.First); ; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := dst.Put(to, k, v, 0); err != nil {
			return err
		}
	}
}

func (e *env) Sync(force bool) error {
	return translate(e.e.Sync(force, false))
}

func (e *env) Stat() (engine.Stat, error) {
	st, err := e.e.Stat()
	if err != nil {
		return engine.Stat{}, translate(err)
	}
	return convertStat(st), nil
}

func (e *env) Info() (engine.Info, error) {
	info, err := e.e.Info(nil)
	if err != nil {
		return engine.Info{}, translate(err)
	}
	return engine.Info{
		MapSize:    int64(info.MapSize),
		LastPage:   int64(info.LastPNO),
		LastTxnID:  int64(info.LastTxnID),
		MaxReaders: uint32(info.MaxReaders),
		NumReaders: uint32(info.NumReaders),
	}, nil
}

func (e *env) CloseDBI(dbi engine.DBI) {
	e.e.CloseDBI(mdbx.DBI(dbi))
}

func (e *env) Close() error {
	e.e.Close()
	return nil
}

func convertStat(st *mdbx.Stat) engine.Stat {
	return engine.Stat{
		PageSize:      uint32(st.PSize),
		Depth:         uint32(st.Depth),
		BranchPages:   uint64(st.BranchPages),
		LeafPages:     uint64(st.LeafPages),
		OverflowPages: uint64(st.OverflowPages),
		Entries:       uint64(st.Entries),
	}
}

type txn struct {
	t      *mdbx.Txn
	locked bool
}

// tableFlags are the table flags lmkv creates tables with.
const tableFlags = mdbx.ReverseKey | mdbx.DupSort

// OpenDBI opens a table. libmdbx opens an existing table with whatever
// flags it was created with when none are given, so the stored flags are
// checked against the requested ones.
func (t *txn) OpenDBI(name string, flags engine.DBFlags) (engine.DBI, error) {
	var f uint
	if flags&engine.ReverseKey != 0 {
		f |= mdbx.ReverseKey
	}
	if flags&engine.DupSort != 0 {
		f |= mdbx.DupSort
	}
	open := f
	if flags&engine.Create != 0 {
		open |= mdbx.Create
	}
	var (
		dbi mdbx.DBI
		err error
	)
	if name == "" {
		dbi, err = t.t.OpenRoot(open)
	} else {
		dbi, err = t.t.OpenDBISimple(name, open)
	}
	if err != nil {
		return 0, translate(err)
	}
	stored, err := t.t.Flags(dbi)
	if err != nil {
		return 0, translate(err)
	}
	if stored&tableFlags != f {
		return 0, engine.Incompatible
	}
	return engine.DBI(dbi), nil
}

func (t *txn) Drop(dbi engine.DBI, del bool) error {
	return translate(t.t.Drop(mdbx.DBI(dbi), del))
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	v, err := t.t.Get(mdbx.DBI(dbi), key)
	return v, translate(err)
}

func (t *txn) Put(dbi engine.DBI, key, val []byte, flags engine.PutFlags) error {
	return translate(t.t.Put(mdbx.DBI(dbi), key, val, putFlags(flags)))
}

func (t *txn) Del(dbi engine.DBI, key, val []byte) error {
	return translate(t.t.Del(mdbx.DBI(dbi), key, val))
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	c, err := t.t.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return nil, translate(err)
	}
	return &cursor{c: c}, nil
}

func (t *txn) Stat(dbi engine.DBI) (engine.Stat, error) {
	st, err := t.t.StatDBI(mdbx.DBI(dbi))
	if err != nil {
		return engine.Stat{}, translate(err)
	}
	return convertStat(st), nil
}

func (t *txn) Commit() error {
	_, err := t.t.Commit()
	t.unlock()
	return translate(err)
}

func (t *txn) Abort() {
	t.t.Abort()
	t.unlock()
}

func (t *txn) unlock() {
	if t.locked {
		t.locked = false
		runtime.UnlockOSThread()
	}
}

func putFlags(f engine.PutFlags) uint {
	var flags uint
	if f&engine.NoOverwrite != 0 {
		flags |= mdbx.NoOverwrite
	}
	if f&engine.NoDupData != 0 {
		flags |= mdbx.NoDupData
	}
	if f&engine.Append != 0 {
		flags |= mdbx.Append
	}
	return flags
}

var cursorOps = [...]uint{
	engine.First:      mdbx.First,
	engine.Last:       mdbx.Last,
	engine.Next:       mdbx.Next,
	engine.Prev:       mdbx.Prev,
	engine.SetKey:     mdbx.SetKey,
	engine.SetRange:   mdbx.SetRange,
	engine.GetCurrent: mdbx.GetCurrent,
}

type cursor struct {
	c *mdbx.Cursor

	// The entry removed by the last Del, kept until the cursor moves.
	deleted        bool
	delKey, delVal []byte
}

func (c *cursor) Get(key []byte, op engine.CursorOp) ([]byte, []byte, error) {
	if op < 0 || int(op) >= len(cursorOps) {
		return nil, nil, engine.EINVAL
	}
	deleted := c.deleted
	c.deleted = false
	k, v, err := c.c.Get(key, nil, cursorOps[op])
	if err != nil {
		st := engine.StatusOf(translate(err))
		// An unpositioned or exhausted cursor has no current entry.
		if op == engine.GetCurrent && (st == engine.EINVAL || st == enodata) {
			return nil, nil, engine.NotFound
		}
		return nil, nil, st
	}
	// After the last entry is deleted libmdbx reports the one before it as
	// current.
	if deleted && op == engine.GetCurrent && !c.after(k, v) {
		return nil, nil, engine.NotFound
	}
	return k, v, nil
}

// after reports whether k, v sorts after the entry removed by Del.
func (c *cursor) after(k, v []byte) bool {
	txn, dbi := c.c.Txn(), c.c.DBI()
	if n := txn.Cmp(dbi, k, c.delKey); n != 0 {
		return n > 0
	}
	return txn.DCmp(dbi, v, c.delVal) > 0
}

func (c *cursor) Put(key, val []byte, flags engine.PutFlags) error {
	c.deleted = false
	return translate(c.c.Put(key, val, putFlags(flags)))
}

func (c *cursor) Del() error {
	c.deleted = false
	k, v, err := c.c.Get(nil, nil, mdbx.GetCurrent)
	if err != nil {
		return translate(err)
	}
	c.delKey, c.delVal = bytes.Clone(k), bytes.Clone(v)
	if err := c.c.Del(0); err != nil {
		return translate(err)
	}
	c.deleted = true
	return nil
}

func (c *cursor) Count() (uint64, error) {
	n, err := c.c.Count()
	return n, translate(err)
}

func (c *cursor) Close() {
	c.c.Close()
}

// translate maps mdbx-go errors onto engine status codes.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mdbx.ErrNotFound) {
		return engine.NotFound
	}
	var opErr *mdbx.OpError
	if errors.As(err, &opErr) && opErr.Errno != nil {
		err = opErr.Errno
	}
	var errno mdbx.Errno
	if errors.As(err, &errno) {
		return engine.Status(errno)
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return engine.Status(sysErr)
	}
	return err
}
