package lmkv

import (
	"sync/atomic"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/internal/handles"
)

const (
	txnActive int32 = iota
	txnCommitted
	txnAborted
	txnInvalidated
)

// TxnOptions configure Begin.
type TxnOptions struct {
	// Parent starts a nested transaction. Its changes become visible to the
	// parent on commit and are discarded with it.
	Parent   *Txn
	ReadOnly bool
}

// PutOptions modify a write.
type PutOptions struct {
	// AllowDuplicate adds the value to a dupsort key instead of replacing
	// the key's values. It has no effect on other databases.
	AllowDuplicate bool

	// NoOverwrite leaves an existing key untouched and reports false.
	NoOverwrite bool

	// Append hints that the key sorts after every existing key. Engines may
	// fail or corrupt ordering when the hint is wrong.
	Append bool
}

// Txn is a transaction. It is a child of its environment, or of its parent
// transaction when nested, and a parent of every cursor opened in it.
//
// A Txn must not be used from several goroutines at once.
type Txn struct {
	env      *Environment
	parent   *Txn
	native   engine.Txn
	readOnly bool
	ref      handles.Ref
	state    atomic.Int32
	err      error
	done     chan struct{}

	// opened holds databases first opened in this transaction. They share
	// its fate: an abort invalidates them, a nested commit hands them to
	// the parent.
	opened []*Database
}

// Begin starts a transaction.
func (env *Environment) Begin(opts TxnOptions) (*Txn, error) {
	if err := env.live(); err != nil {
		return nil, err
	}
	parentRef := env.ref
	var parentNative engine.Txn
	if p := opts.Parent; p != nil {
		if p.env != env {
			return nil, ErrForeignHandle
		}
		if !p.ref.Live() {
			return nil, ErrInvalidState
		}
		parentRef, parentNative = p.ref, p.native
	}

	var flags engine.TxnFlags
	if opts.ReadOnly || env.cfg.ReadOnly {
		flags |= engine.TxnReadOnly
	}
	native, err := env.native.BeginTxn(parentNative, flags)
	if err != nil {
		return nil, wrap("begin", err)
	}
	txn := &Txn{
		env:      env,
		parent:   opts.Parent,
		native:   native,
		readOnly: flags&engine.TxnReadOnly != 0,
		done:     make(chan struct{}),
	}
	if txn.ref, err = env.table.Register(txn.release, parentRef); err != nil {
		native.Abort()
		return nil, ErrInvalidState
	}
	return txn, nil
}

// release ends the engine transaction. A committed Txn commits, anything
// else aborts, which is what an environment close or parent end does to
// an active transaction.
func (txn *Txn) release() {
	defer close(txn.done)
	if txn.state.Load() == txnCommitted {
		if txn.err = txn.native.Commit(); txn.err == nil {
			txn.handOver()
			return
		}
	} else {
		if txn.state.CompareAndSwap(txnActive, txnInvalidated) && txn.env.closing.Load() {
			txn.env.log.Debug("transaction aborted by environment close")
		}
		txn.native.Abort()
	}
	for _, db := range txn.opened {
		db.detached = true
		txn.env.table.Invalidate(db.ref)
	}
	txn.opened = nil
}

// handOver passes the databases opened in a committed nested transaction
// to its parent.
func (txn *Txn) handOver() {
	if txn.parent != nil && len(txn.opened) > 0 {
		txn.parent.opened = append(txn.parent.opened, txn.opened...)
	}
	txn.opened = nil
}

// Commit makes the transaction's writes durable and visible, then
// invalidates the transaction and its cursors. Committing an already
// committed or aborted transaction is a no-op; committing one invalidated
// by its owner fails with ErrInvalidState.
//
// Once Commit has claimed the transaction, an environment close racing it
// still commits, and Commit reports the engine's result.
func (txn *Txn) Commit() error {
	if !txn.state.CompareAndSwap(txnActive, txnCommitted) {
		if txn.state.Load() == txnInvalidated {
			return ErrInvalidState
		}
		return nil
	}
	txn.env.table.Invalidate(txn.ref)
	<-txn.done
	if txn.err != nil {
		txn.env.log.Debug("commit failed", "err", txn.err)
	}
	return wrap("commit", txn.err)
}

// Abort discards the transaction's writes and invalidates it and its
// cursors. It is a no-op on a finished transaction.
func (txn *Txn) Abort() {
	if txn.state.CompareAndSwap(txnActive, txnAborted) {
		txn.env.table.Invalidate(txn.ref)
	}
}

// ReadOnly reports whether the transaction can write.
func (txn *Txn) ReadOnly() bool { return txn.readOnly }

// Parent returns the parent transaction, or nil.
func (txn *Txn) Parent() *Txn { return txn.parent }

// Env returns the owning environment.
func (txn *Txn) Env() *Environment { return txn.env }

// Valid reports whether the transaction can still be used.
func (txn *Txn) Valid() bool { return txn.ref.Live() }

// resolve checks that the transaction and db are live. A nil db selects the
// default database.
func (txn *Txn) resolve(db *Database) (*Database, error) {
	if !txn.ref.Live() {
		return nil, ErrInvalidState
	}
	if db == nil {
		return txn.env.main, nil
	}
	if err := txn.env.owns(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Get returns the value stored under key. For dupsort databases it is the
// first value. A missing key yields (nil, false, nil).
func (txn *Txn) Get(db *Database, key []byte) ([]byte, bool, error) {
	db, err := txn.resolve(db)
	if err != nil {
		return nil, false, err
	}
	val, err := txn.native.Get(db.dbi, key)
	if engine.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", err)
	}
	return db.output(val), true, nil
}

// GetOr is Get returning def for a missing key.
func (txn *Txn) GetOr(db *Database, key, def []byte) ([]byte, error) {
	val, ok, err := txn.Get(db, key)
	if err != nil || !ok {
		return def, err
	}
	return val, nil
}

// Put stores val under key and reports whether anything was written. It
// reports false, without error, when NoOverwrite finds the key present or
// when AllowDuplicate finds the exact pair present.
func (txn *Txn) Put(db *Database, key, val []byte, opts PutOptions) (bool, error) {
	db, err := txn.resolve(db)
	if err != nil {
		return false, err
	}
	flags, replace := putFlags(db, opts)
	if replace {
		if err := txn.native.Del(db.dbi, key, nil); err != nil && !engine.IsNotFound(err) {
			return false, wrap("put", err)
		}
	}
	err = txn.native.Put(db.dbi, key, val, flags)
	if engine.IsKeyExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrap("put", err)
	}
	return true, nil
}

// putFlags maps opts to engine flags. replace is set when a dupsort key's
// existing values must be removed first.
func putFlags(db *Database, opts PutOptions) (flags engine.PutFlags, replace bool) {
	if opts.NoOverwrite {
		flags |= engine.NoOverwrite
	}
	if opts.Append {
		flags |= engine.Append
	}
	if db.opts.DupSort {
		if opts.AllowDuplicate {
			flags |= engine.NoDupData
		} else if !opts.NoOverwrite {
			replace = true
		}
	}
	return flags, replace
}

// Delete removes key and reports whether it existed. In a dupsort database a
// non-empty val removes only that value; an empty val removes every value of
// the key. val is ignored elsewhere.
func (txn *Txn) Delete(db *Database, key, val []byte) (bool, error) {
	db, err := txn.resolve(db)
	if err != nil {
		return false, err
	}
	if !db.opts.DupSort || len(val) == 0 {
		val = nil
	}
	err = txn.native.Del(db.dbi, key, val)
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, wrap("delete", err)
	}
	return true, nil
}

// Drop empties db. With del set the database itself is deleted and the
// handle, with every cursor on it, is invalidated. The default database can
// only be emptied.
func (txn *Txn) Drop(db *Database, del bool) error {
	db, err := txn.resolve(db)
	if err != nil {
		return err
	}
	if db == txn.env.main {
		del = false
	}
	if err := txn.native.Drop(db.dbi, del); err != nil {
		return wrap("drop", err)
	}
	if del {
		// The engine releases the handle itself.
		db.detached = true
		txn.env.table.Invalidate(db.ref)
	}
	txn.env.log.Debug("database dropped", "db", db.name, "deleted", del)
	return nil
}

// OpenDatabase opens name inside txn, creating it unless txn is read-only
// or opts.NoCreate is set. A handle opened here is invalidated when txn,
// or the parent it is handed to on commit, aborts. Reopening a live
// database returns the existing handle.
func (txn *Txn) OpenDatabase(name string, opts DatabaseOptions) (*Database, error) {
	if !txn.ref.Live() {
		return nil, ErrInvalidState
	}
	env := txn.env
	if name == "" {
		return env.main, nil
	}
	if db, err := env.lookup(name, opts); db != nil || err != nil {
		return db, err
	}

	flags := opts.flags()
	if !txn.readOnly && !opts.NoCreate {
		flags |= engine.Create
	}
	dbi, err := txn.native.OpenDBI(name, flags)
	if err != nil {
		return nil, wrap("open database "+name, err)
	}
	db, fresh, err := env.adopt(name, dbi, opts)
	if err != nil {
		return nil, err
	}
	if fresh {
		txn.opened = append(txn.opened, db)
	}
	return db, nil
}

// Stat returns statistics of db's tree as seen by the transaction.
func (txn *Txn) Stat(db *Database) (engine.Stat, error) {
	db, err := txn.resolve(db)
	if err != nil {
		return engine.Stat{}, err
	}
	st, err := txn.native.Stat(db.dbi)
	return st, wrap("stat", err)
}
