package lmkv

import "bytes"

// TxnOp is a function that operates on a transaction.
// This is the callback type for View, Update, and RunTxn.
type TxnOp func(txn *Txn) error

// View executes a read-only transaction.
// The transaction is always aborted when fn returns.
func (env *Environment) View(fn TxnOp) error {
	return env.RunTxn(TxnOptions{ReadOnly: true}, fn)
}

// Update executes a read-write transaction.
// The transaction is committed when fn returns nil,
// or aborted when fn returns an error.
func (env *Environment) Update(fn TxnOp) error {
	return env.RunTxn(TxnOptions{}, fn)
}

// RunTxn runs fn in a transaction started with opts. Read-only
// transactions are aborted when fn returns; others commit when fn returns
// nil. The transaction is aborted if fn panics.
func (env *Environment) RunTxn(opts TxnOptions, fn TxnOp) error {
	txn, err := env.Begin(opts)
	if err != nil {
		return err
	}
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	if txn.ReadOnly() {
		return nil
	}
	return txn.Commit()
}

// Get reads key from db in its own read-only transaction. The value is
// always a copy.
func (env *Environment) Get(db *Database, key []byte) (val []byte, ok bool, err error) {
	err = env.View(func(txn *Txn) error {
		var v []byte
		v, ok, err = txn.Get(db, key)
		if ok {
			val = append([]byte(nil), v...)
		}
		return err
	})
	return val, ok, err
}

// Put writes key in its own transaction; see Txn.Put.
func (env *Environment) Put(db *Database, key, val []byte, opts PutOptions) (written bool, err error) {
	err = env.Update(func(txn *Txn) error {
		written, err = txn.Put(db, key, val, opts)
		return err
	})
	return written, err
}

// Delete removes key in its own transaction; see Txn.Delete.
func (env *Environment) Delete(db *Database, key, val []byte) (found bool, err error) {
	err = env.Update(func(txn *Txn) error {
		found, err = txn.Delete(db, key, val)
		return err
	})
	return found, err
}

// Pair is one key and value.
type Pair struct {
	Key, Value []byte
}

// Gets reads keys from db in one read-only transaction. Missing keys are
// absent from the result; values are copies.
func (env *Environment) Gets(db *Database, keys [][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := env.View(func(txn *Txn) error {
		for _, k := range keys {
			v, ok, err := txn.Get(db, k)
			if err != nil {
				return err
			}
			if ok {
				out[string(k)] = bytes.Clone(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Puts writes items in order in one transaction and reports, per item,
// whether it was written; see Txn.Put. Any failure aborts the whole batch.
func (env *Environment) Puts(db *Database, items []Pair, opts PutOptions) ([]bool, error) {
	written := make([]bool, len(items))
	err := env.Update(func(txn *Txn) error {
		for i, it := range items {
			ok, err := txn.Put(db, it.Key, it.Value, opts)
			if err != nil {
				return err
			}
			written[i] = ok
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Deletes removes keys in one transaction and reports, per key, whether it
// existed. In a dupsort database every value of each key goes.
func (env *Environment) Deletes(db *Database, keys [][]byte) ([]bool, error) {
	found := make([]bool, len(keys))
	err := env.Update(func(txn *Txn) error {
		for i, k := range keys {
			ok, err := txn.Delete(db, k, nil)
			if err != nil {
				return err
			}
			found[i] = ok
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
