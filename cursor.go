package lmkv

import (
	"bytes"
	"iter"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/internal/handles"
)

// Cursor walks one database inside one transaction. It is a child of both:
// ending the transaction or closing the database invalidates the cursor.
//
// Positioning methods report whether the cursor landed on an entry. When
// one reports false for First, Last, SetKey or SetRange the cursor is left
// unpositioned; a failed Next or Prev leaves the position unchanged.
type Cursor struct {
	txn    *Txn
	db     *Database
	native engine.Cursor
	ref    handles.Ref

	key, val   []byte
	positioned bool
	err        error
}

// Cursor opens a cursor on db; nil selects the default database. The new
// cursor is unpositioned.
func (txn *Txn) Cursor(db *Database) (*Cursor, error) {
	db, err := txn.resolve(db)
	if err != nil {
		return nil, err
	}
	native, err := txn.native.OpenCursor(db.dbi)
	if err != nil {
		return nil, wrap("open cursor", err)
	}
	c := &Cursor{txn: txn, db: db, native: native}
	if c.ref, err = txn.env.table.Register(c.release, txn.ref, db.ref); err != nil {
		native.Close()
		return nil, ErrInvalidState
	}
	return c, nil
}

func (c *Cursor) release() {
	c.native.Close()
	c.key, c.val, c.positioned = nil, nil, false
}

// Close releases the cursor. Calling it again is a no-op.
func (c *Cursor) Close() {
	c.txn.env.table.Invalidate(c.ref)
}

// Valid reports whether the cursor can still be used.
func (c *Cursor) Valid() bool { return c.ref.Live() }

// Txn returns the owning transaction.
func (c *Cursor) Txn() *Txn { return c.txn }

// Database returns the database the cursor walks.
func (c *Cursor) Database() *Database { return c.db }

func (c *Cursor) move(key []byte, op engine.CursorOp) (bool, error) {
	if !c.ref.Live() {
		return false, ErrInvalidState
	}
	k, v, err := c.native.Get(key, op)
	if engine.IsNotFound(err) {
		if op != engine.Next && op != engine.Prev {
			c.key, c.val, c.positioned = nil, nil, false
		}
		return false, nil
	}
	if err != nil {
		return false, wrap("cursor "+op.String(), err)
	}
	c.key, c.val, c.positioned = k, v, true
	return true, nil
}

// First moves to the first entry.
func (c *Cursor) First() (bool, error) { return c.move(nil, engine.First) }

// Last moves to the last entry.
func (c *Cursor) Last() (bool, error) { return c.move(nil, engine.Last) }

// Next moves to the following entry. An unpositioned cursor moves to the
// first one.
func (c *Cursor) Next() (bool, error) { return c.move(nil, engine.Next) }

// Prev moves to the preceding entry. An unpositioned cursor moves to the
// last one.
func (c *Cursor) Prev() (bool, error) { return c.move(nil, engine.Prev) }

// SetKey moves to key exactly. In a dupsort database the cursor lands on
// the key's first value.
func (c *Cursor) SetKey(key []byte) (bool, error) { return c.move(key, engine.SetKey) }

// SetRange moves to the first key greater than or equal to key. An empty
// key behaves like First.
func (c *Cursor) SetRange(key []byte) (bool, error) {
	if len(key) == 0 {
		return c.First()
	}
	return c.move(key, engine.SetRange)
}

// Positioned reports whether the cursor is on an entry.
func (c *Cursor) Positioned() bool { return c.positioned && c.ref.Live() }

// Current returns the entry under the cursor. It fails with
// ErrInvalidState once the cursor is invalid, and with an EINVAL status when
// the cursor is unpositioned, so an empty key or value is never mistaken for
// a missing one.
func (c *Cursor) Current() (key, val []byte, err error) {
	if !c.ref.Live() {
		return nil, nil, ErrInvalidState
	}
	if !c.positioned {
		return nil, nil, wrap("cursor current", engine.EINVAL)
	}
	return c.db.output(c.key), c.db.output(c.val), nil
}

// Key returns the current key, or nil when unpositioned or invalid. Use
// Current to tell those cases apart.
func (c *Cursor) Key() []byte {
	if !c.Positioned() {
		return nil
	}
	return c.db.output(c.key)
}

// Value returns the current value, or nil when unpositioned or invalid.
// Use Current to tell those cases apart.
func (c *Cursor) Value() []byte {
	if !c.Positioned() {
		return nil
	}
	return c.db.output(c.val)
}

// Item returns the current key and value.
func (c *Cursor) Item() (key, val []byte) {
	return c.Key(), c.Value()
}

// KeyView returns the current key without copying, whatever the
// database's ValueMode. Like Key it returns nil for an invalid cursor.
func (c *Cursor) KeyView() []byte {
	if !c.Positioned() {
		return nil
	}
	return c.key
}

// ValueView returns the current value without copying.
func (c *Cursor) ValueView() []byte {
	if !c.Positioned() {
		return nil
	}
	return c.val
}

// KeyCopy returns a copy of the current key.
func (c *Cursor) KeyCopy() []byte { return bytes.Clone(c.KeyView()) }

// ValueCopy returns a copy of the current value.
func (c *Cursor) ValueCopy() []byte { return bytes.Clone(c.ValueView()) }

// Get positions at key and returns its value.
func (c *Cursor) Get(key []byte) ([]byte, bool, error) {
	ok, err := c.SetKey(key)
	if !ok || err != nil {
		return nil, false, err
	}
	return c.Value(), true, nil
}

// Put stores val under key through the cursor, which is left on the new
// entry. It follows the same rules as Txn.Put.
func (c *Cursor) Put(key, val []byte, opts PutOptions) (bool, error) {
	if !c.ref.Live() {
		return false, ErrInvalidState
	}
	flags, replace := putFlags(c.db, opts)
	if replace {
		if err := c.txn.native.Del(c.db.dbi, key, nil); err != nil && !engine.IsNotFound(err) {
			return false, wrap("cursor put", err)
		}
	}
	err := c.native.Put(key, val, flags)
	if engine.IsKeyExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrap("cursor put", err)
	}
	if _, err := c.move(nil, engine.GetCurrent); err != nil {
		return true, err
	}
	return true, nil
}

// Delete removes the current entry and moves to the one that followed it.
// The cursor becomes unpositioned when the deleted entry was the last.
func (c *Cursor) Delete() error {
	if !c.ref.Live() {
		return ErrInvalidState
	}
	if !c.positioned {
		return wrap("cursor delete", engine.EINVAL)
	}
	if err := c.native.Del(); err != nil {
		return wrap("cursor delete", err)
	}
	_, err := c.move(nil, engine.GetCurrent)
	return err
}

// Count returns the number of values under the current key: 1 outside
// dupsort databases.
func (c *Cursor) Count() (uint64, error) {
	if !c.ref.Live() {
		return 0, ErrInvalidState
	}
	n, err := c.native.Count()
	return n, wrap("cursor count", err)
}

// Err returns the error that stopped the last iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Forward yields entries in ascending order, starting at the current entry
// or at the first one when unpositioned. Each returned sequence can be
// ranged over once. Iteration stops early on error; see Err.
func (c *Cursor) Forward() iter.Seq2[[]byte, []byte] {
	return c.walk(engine.First, engine.Next)
}

// Reverse is Forward in descending order.
func (c *Cursor) Reverse() iter.Seq2[[]byte, []byte] {
	return c.walk(engine.Last, engine.Prev)
}

// ForwardKeys yields only keys; see Forward.
func (c *Cursor) ForwardKeys() iter.Seq[[]byte] { return keys(c.Forward()) }

// ForwardValues yields only values; see Forward.
func (c *Cursor) ForwardValues() iter.Seq[[]byte] { return values(c.Forward()) }

// ReverseKeys yields only keys; see Reverse.
func (c *Cursor) ReverseKeys() iter.Seq[[]byte] { return keys(c.Reverse()) }

// ReverseValues yields only values; see Reverse.
func (c *Cursor) ReverseValues() iter.Seq[[]byte] { return values(c.Reverse()) }

func (c *Cursor) walk(start, step engine.CursorOp) iter.Seq2[[]byte, []byte] {
	used := false
	return func(yield func([]byte, []byte) bool) {
		if used {
			return
		}
		used = true
		c.err = nil
		if !c.Positioned() {
			if ok, err := c.move(nil, start); !ok {
				c.err = err
				return
			}
		}
		for {
			if !yield(c.Key(), c.Value()) {
				return
			}
			if ok, err := c.move(nil, step); !ok {
				c.err = err
				return
			}
		}
	}
}

func keys(seq iter.Seq2[[]byte, []byte]) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for k := range seq {
			if !yield(k) {
				return
			}
		}
	}
}

func values(seq iter.Seq2[[]byte, []byte]) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, v := range seq {
			if !yield(v) {
				return
			}
		}
	}
}
