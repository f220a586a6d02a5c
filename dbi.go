package lmkv

import (
	"bytes"
	"slices"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/internal/handles"
)

// ValueMode selects how keys and values read from a database are returned.
type ValueMode int

const (
	// CopyValues returns slices owned by the caller.
	CopyValues ValueMode = iota

	// ViewValues returns slices pointing into engine memory. They stay
	// valid only until the transaction that produced them ends or writes.
	ViewValues
)

// DatabaseOptions configure OpenDatabase. ReverseKey and DupSort are fixed
// when the database is created and must match on every later open.
type DatabaseOptions struct {
	ReverseKey bool
	DupSort    bool
	// NoCreate fails with a not-found error instead of creating the database.
	NoCreate bool
	Values   ValueMode
}

func (o DatabaseOptions) flags() engine.DBFlags {
	var f engine.DBFlags
	if o.ReverseKey {
		f |= engine.ReverseKey
	}
	if o.DupSort {
		f |= engine.DupSort
	}
	return f
}

// Database is a handle to a named key space inside an Environment. It is a
// child of the environment and a parent of every cursor opened on it.
type Database struct {
	env  *Environment
	name string
	dbi  engine.DBI
	opts DatabaseOptions
	ref  handles.Ref

	// detached is set once the engine has released dbi on its own, after
	// a drop or the abort of the transaction that opened it.
	detached bool
}

// OpenDatabase returns the database called name, opening it in its own
// transaction. The empty name is the default database. Reopening a live
// database returns the existing handle.
func (env *Environment) OpenDatabase(name string, opts DatabaseOptions) (*Database, error) {
	if err := env.live(); err != nil {
		return nil, err
	}
	if name == "" {
		return env.main, nil
	}
	if db, err := env.lookup(name, opts); db != nil || err != nil {
		return db, err
	}
	return env.openDatabase(name, opts)
}

// lookup returns the live handle already open under name, if any.
func (env *Environment) lookup(name string, opts DatabaseOptions) (*Database, error) {
	env.mu.Lock()
	db, ok := env.byName[name]
	env.mu.Unlock()
	if !ok || !db.ref.Live() {
		return nil, nil
	}
	if db.opts.flags() != opts.flags() {
		return nil, wrap("open database "+name, engine.Incompatible)
	}
	return db, nil
}

func (env *Environment) openDatabase(name string, opts DatabaseOptions) (*Database, error) {
	flags := opts.flags()
	txnFlags := engine.TxnReadOnly
	if !env.cfg.ReadOnly && !opts.NoCreate {
		flags |= engine.Create
		txnFlags = 0
	}

	native, err := env.native.BeginTxn(nil, txnFlags)
	if err != nil {
		return nil, wrap("open database "+name, err)
	}
	dbi, err := native.OpenDBI(name, flags)
	if err != nil {
		native.Abort()
		return nil, wrap("open database "+name, err)
	}
	if err := native.Commit(); err != nil {
		return nil, wrap("open database "+name, err)
	}
	db, _, err := env.adopt(name, dbi, opts)
	return db, err
}

// adopt wraps an engine table handle. Engines hand out one dbi per table,
// so when a live Database already holds dbi it is returned instead and
// fresh is false.
func (env *Environment) adopt(name string, dbi engine.DBI, opts DatabaseOptions) (db *Database, fresh bool, err error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if cur, ok := env.byDBI.Get(uint32(dbi)); ok && cur.ref.Live() {
		return cur, false, nil
	}

	db = &Database{env: env, name: name, dbi: dbi, opts: opts}
	if db.ref, err = env.table.Register(db.release, env.ref); err != nil {
		return nil, false, ErrInvalidState
	}
	if name != "" {
		env.byName[name] = db
	}
	env.byDBI.Set(uint32(dbi), db)
	env.log.Debug("database opened", "db", name, "dbi", dbi, "dupsort", opts.DupSort, "reverse_key", opts.ReverseKey)
	return db, true, nil
}

func (db *Database) release() {
	env := db.env
	env.mu.Lock()
	if env.byName[db.name] == db {
		delete(env.byName, db.name)
	}
	if cur, ok := env.byDBI.Get(uint32(db.dbi)); ok && cur == db {
		env.byDBI.Delete(uint32(db.dbi))
	}
	env.mu.Unlock()
	if !env.closing.Load() && !db.detached && db != env.main {
		env.native.CloseDBI(db.dbi)
	}
}

// Databases returns the names of the open named databases, sorted.
func (env *Environment) Databases() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	names := make([]string, 0, env.byDBI.Len())
	env.byDBI.ForEach(func(_ uint32, db *Database) {
		if db.name != "" && db.ref.Live() {
			names = append(names, db.name)
		}
	})
	slices.Sort(names)
	return names
}

// Close releases the handle and every cursor opened on it. The stored data
// is untouched. The default database lives as long as its environment, so
// closing it is a no-op.
func (db *Database) Close() {
	if db == db.env.main {
		return
	}
	db.env.table.Invalidate(db.ref)
}

// Name returns the database name; "" for the default database.
func (db *Database) Name() string { return db.name }

// DupSort reports whether keys may hold several sorted values.
func (db *Database) DupSort() bool { return db.opts.DupSort }

// ReverseKey reports whether keys compare from their last byte.
func (db *Database) ReverseKey() bool { return db.opts.ReverseKey }

// Values returns how reads from the database are materialised.
func (db *Database) Values() ValueMode { return db.opts.Values }

// Env returns the owning environment.
func (db *Database) Env() *Environment { return db.env }

// Valid reports whether the handle can still be used.
func (db *Database) Valid() bool { return db.ref.Live() }

func (db *Database) output(b []byte) []byte {
	if b == nil || db.opts.Values == ViewValues {
		return b
	}
	return bytes.Clone(b)
}
