// Package lmkv is a handle layer over embedded, memory-mapped, transactional
// key-value engines in the LMDB family.
//
// Four handle types form a dependency graph:
//   - Environment: an open store, the root of the graph
//   - Database: a named key space, child of its Environment
//   - Txn: a transaction, child of its Environment or parent Txn
//   - Cursor: a position in one Database inside one Txn, child of both
//
// Closing, committing, aborting or dropping a handle invalidates it and every
// handle that depends on it, children first. An invalidated handle fails
// every later operation with ErrInvalidState without calling into the
// engine, so engine objects are never used after they are released.
//
// Engines are chosen by name through Config.Engine. "mdbx" (libmdbx via
// cgo) is the default; "bolt" (bbolt) is pure Go.
//
// Basic usage:
//
//	env, err := lmkv.Open(lmkv.Config{Path: "/path/to/db", MaxDBs: 4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	users, err := env.OpenDatabase("users", lmkv.DatabaseOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = env.Update(func(txn *lmkv.Txn) error {
//	    _, err := txn.Put(users, []byte("alice"), []byte("admin"), lmkv.PutOptions{})
//	    return err
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	txn, err := env.Begin(lmkv.TxnOptions{ReadOnly: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer txn.Abort()
//	cur, err := txn.Cursor(users)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for k, v := range cur.Forward() {
//	    fmt.Printf("%s=%s\n", k, v)
//	}
package lmkv
