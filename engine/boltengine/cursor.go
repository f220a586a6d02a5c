package boltengine

import (
	"bytes"

	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/lmkv/engine"
)

// cursor walks (key, value) pairs. In a dupsort table outer walks keys and
// inner walks the nested bucket of the current key.
//
// bbolt cursors are undefined after a write to their bucket, so the cursor
// remembers its pair and re-seeks whenever the transaction has written since
// the bolt cursors were positioned. After a delete the re-seek lands on the
// following pair, which is where libmdbx leaves its cursor.
type cursor struct {
	txn *txn
	dbi engine.DBI
	b   *bolt.Bucket
	dup bool
	rev bool

	outer *bolt.Cursor
	inner *bolt.Cursor
	seen  uint64

	key   []byte // stored form
	val   []byte
	valid bool
}

// refresh rebuilds the bolt cursors when they may be stale and reports
// whether it did.
func (c *cursor) refresh() (bool, error) {
	if c.outer != nil && c.seen == c.txn.mutations {
		return false, nil
	}
	b, _, err := c.txn.bucket(c.dbi)
	if err != nil {
		return true, err
	}
	c.b = b
	c.outer = b.Cursor()
	c.inner = nil
	c.seen = c.txn.mutations
	return true, nil
}

// enter descends into the outer entry k, skipping keys without values.
func (c *cursor) enter(k, v []byte, last bool) ([]byte, []byte) {
	if !c.dup {
		return k, value(v)
	}
	for k != nil {
		if sub := c.b.Bucket(k); sub != nil {
			c.inner = sub.Cursor()
			var dv []byte
			if last {
				dv, _ = c.inner.Last()
			} else {
				dv, _ = c.inner.First()
			}
			if dv != nil {
				return k, dv
			}
		}
		if last {
			k, _ = c.outer.Prev()
		} else {
			k, _ = c.outer.Next()
		}
	}
	return nil, nil
}

func (c *cursor) first() ([]byte, []byte) {
	k, v := c.outer.First()
	return c.enter(k, v, false)
}

func (c *cursor) last() ([]byte, []byte) {
	k, v := c.outer.Last()
	return c.enter(k, v, true)
}

// forward steps from an exactly positioned cursor.
func (c *cursor) forward() ([]byte, []byte) {
	if c.dup && c.inner != nil {
		if dv, _ := c.inner.Next(); dv != nil {
			return c.key, dv
		}
	}
	k, v := c.outer.Next()
	return c.enter(k, v, false)
}

func (c *cursor) backward() ([]byte, []byte) {
	if c.dup && c.inner != nil {
		if dv, _ := c.inner.Prev(); dv != nil {
			return c.key, dv
		}
	}
	k, v := c.outer.Prev()
	return c.enter(k, v, true)
}

// seek positions at the first pair not less than (key, val). A nil val
// means the first value of key.
func (c *cursor) seek(key, val []byte) ([]byte, []byte) {
	k, v := c.outer.Seek(key)
	if !c.dup || k == nil || !bytes.Equal(k, key) || val == nil {
		return c.enter(k, v, false)
	}
	if sub := c.b.Bucket(k); sub != nil {
		c.inner = sub.Cursor()
		if dv, _ := c.inner.Seek(val); dv != nil {
			return k, dv
		}
	}
	k, v = c.outer.Next()
	return c.enter(k, v, false)
}

// at reports whether (k, v) is the remembered position.
func (c *cursor) at(k, v []byte) bool {
	if k == nil || !bytes.Equal(k, c.key) {
		return false
	}
	return !c.dup || bytes.Equal(v, c.val)
}

func (c *cursor) Get(key []byte, op engine.CursorOp) ([]byte, []byte, error) {
	stale, err := c.refresh()
	if err != nil {
		return nil, nil, err
	}

	var k, v []byte
	switch op {
	case engine.First:
		k, v = c.first()
	case engine.Last:
		k, v = c.last()
	case engine.Next, engine.Prev:
		k, v = c.step(op, stale)
		if k == nil {
			// Keep the pair; the bolt cursors ran off the end.
			c.outer = nil
			return nil, nil, engine.NotFound
		}
	case engine.SetKey:
		enc := encodeKey(key, flagsOf(c.rev))
		k, v = c.seek(enc, nil)
		if k != nil && !bytes.Equal(k, enc) {
			k = nil
		}
	case engine.SetRange:
		k, v = c.seek(encodeKey(key, flagsOf(c.rev)), nil)
	case engine.GetCurrent:
		if !c.valid {
			return nil, nil, engine.NotFound
		}
		k, v = c.key, c.val
		if stale {
			k, v = c.seek(c.key, c.val)
		}
	default:
		return nil, nil, engine.EINVAL
	}

	if k == nil {
		c.valid = false
		return nil, nil, engine.NotFound
	}
	c.key, c.val, c.valid = k, v, true
	return c.decode(k), v, nil
}

func (c *cursor) step(op engine.CursorOp, stale bool) ([]byte, []byte) {
	if !c.valid {
		if op == engine.Next {
			return c.first()
		}
		return c.last()
	}
	if stale {
		k, v := c.seek(c.key, c.val)
		if !c.at(k, v) {
			// The remembered pair is gone and (k, v) is its successor.
			if op == engine.Next {
				return k, v
			}
			if k == nil {
				return c.last()
			}
			c.key = k
			return c.backward()
		}
	}
	if op == engine.Next {
		return c.forward()
	}
	return c.backward()
}

func (c *cursor) decode(k []byte) []byte {
	if c.rev {
		return reversed(k)
	}
	return k
}

func (c *cursor) Put(key, val []byte, flags engine.PutFlags) error {
	if c.txn.readOnly {
		return engine.EACCES
	}
	if _, err := c.refresh(); err != nil {
		return err
	}
	tbl := table{flags: tableFlags(c.dup, c.rev)}
	if err := c.txn.put(c.b, tbl, key, val, flags); err != nil {
		return err
	}
	if val == nil {
		val = []byte{}
	}
	c.key = encodeKey(key, tbl.flags)
	c.val = val
	c.valid = true
	return nil
}

func (c *cursor) Del() error {
	if c.txn.readOnly {
		return engine.EACCES
	}
	stale, err := c.refresh()
	if err != nil {
		return err
	}
	if !c.valid {
		return engine.EINVAL
	}
	if stale {
		if k, v := c.seek(c.key, c.val); !c.at(k, v) {
			return engine.NotFound
		}
	}
	c.txn.mutations++
	if !c.dup {
		return translate(c.b.Delete(c.key))
	}
	sub := c.b.Bucket(c.key)
	if sub == nil {
		return engine.NotFound
	}
	return c.txn.delDup(c.b, sub, c.key, c.val)
}

func (c *cursor) Count() (uint64, error) {
	if !c.valid {
		return 0, engine.EINVAL
	}
	if !c.dup {
		return 1, nil
	}
	if _, err := c.refresh(); err != nil {
		return 0, err
	}
	sub := c.b.Bucket(c.key)
	if sub == nil {
		return 0, engine.NotFound
	}
	var n uint64
	err := sub.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, translate(err)
}

func (c *cursor) Close() {
	c.outer = nil
	c.inner = nil
}

func value(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

func flagsOf(rev bool) engine.DBFlags {
	if rev {
		return engine.ReverseKey
	}
	return 0
}

func tableFlags(dup, rev bool) engine.DBFlags {
	f := flagsOf(rev)
	if dup {
		f |= engine.DupSort
	}
	return f
}
