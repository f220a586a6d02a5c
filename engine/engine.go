// Package engine defines the boundary between the lmkv handle layer and the
// storage engine that owns pages, trees and locking.
//
// An engine is registered by name and opened once per store path. The handle
// layer never touches engine objects after it has invalidated the handle that
// owns them, so implementations may assume that every call arrives on a live
// object and that Close/Commit/Abort are called at most once.
package engine

import "os"

// DBI identifies a table inside an open environment.
type DBI uint32

// MainDBI is the handle of the default (unnamed) table.
const MainDBI DBI = 1

// EnvFlags control how an environment is opened.
type EnvFlags uint

const (
	// NoSubdir treats the path as a file name prefix instead of a directory.
	NoSubdir EnvFlags = 1 << iota

	// ReadOnly opens the store without write access.
	ReadOnly

	// NoMetaSync skips flushing the meta page on commit.
	NoMetaSync

	// NoSync skips flushing data pages on commit.
	NoSync

	// MapAsync flushes the map asynchronously.
	MapAsync
)

// TxnFlags control how a transaction is started.
type TxnFlags uint

const (
	// TxnReadOnly starts a read-only snapshot.
	TxnReadOnly TxnFlags = 1 << iota
)

// DBFlags describe a table. They are fixed when the table is created.
type DBFlags uint

const (
	// Create creates the table when it does not exist.
	Create DBFlags = 1 << iota

	// ReverseKey orders keys by comparing bytes from the end.
	ReverseKey

	// DupSort allows several sorted values per key.
	DupSort
)

// PutFlags modify a write.
type PutFlags uint

const (
	// NoOverwrite fails with KeyExist when the key is present.
	NoOverwrite PutFlags = 1 << iota

	// NoDupData fails with KeyExist when the exact pair is present (dupsort).
	NoDupData

	// Append hints that the key sorts after every existing key.
	Append
)

// CursorOp selects the positioning operation of Cursor.Get.
type CursorOp int

const (
	First CursorOp = iota
	Last
	Next
	Prev
	// SetKey positions at an exact key.
	SetKey
	// SetRange positions at the first key greater than or equal to the argument.
	SetRange
	// GetCurrent re-reads the entry under the cursor.
	GetCurrent
)

var cursorOpNames = [...]string{"first", "last", "next", "prev", "set_key", "set_range", "get_current"}

func (op CursorOp) String() string {
	if op >= 0 && int(op) < len(cursorOpNames) {
		return cursorOpNames[op]
	}
	return "unknown"
}

// Config is what the handle layer passes to Engine.Open.
type Config struct {
	Flags      EnvFlags
	MapSize    int64
	MaxReaders int
	MaxDBs     int
	Mode       os.FileMode
	// Label names the environment in engine diagnostics.
	Label string
}

// Stat describes the tree of one table, or of the main table for Env.Stat.
type Stat struct {
	PageSize      uint32
	Depth         uint32
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	Entries       uint64
}

// Info describes the environment as a whole.
type Info struct {
	MapSize    int64
	LastPage   int64
	LastTxnID  int64
	MaxReaders uint32
	NumReaders uint32
}

// Engine opens environments.
type Engine interface {
	Open(path string, cfg Config) (Env, error)
}

// Env is an open store.
type Env interface {
	// BeginTxn starts a transaction. A non-nil parent starts a nested one.
	BeginTxn(parent Txn, flags TxnFlags) (Txn, error)
	Copy(dir string) error
	Sync(force bool) error
	Stat() (Stat, error)
	Info() (Info, error)
	// CloseDBI releases a table handle. The table itself is untouched.
	CloseDBI(dbi DBI)
	Close() error
}

// Txn is an engine transaction.
type Txn interface {
	// OpenDBI opens a table. The empty name is the default table.
	OpenDBI(name string, flags DBFlags) (DBI, error)
	Drop(dbi DBI, del bool) error
	Get(dbi DBI, key []byte) ([]byte, error)
	Put(dbi DBI, key, val []byte, flags PutFlags) error
	// Del removes key; with a non-nil val only that duplicate is removed.
	Del(dbi DBI, key, val []byte) error
	OpenCursor(dbi DBI) (Cursor, error)
	Stat(dbi DBI) (Stat, error)
	Commit() error
	Abort()
}

// Cursor walks one table inside one transaction.
type Cursor interface {
	Get(key []byte, op CursorOp) (k, v []byte, err error)
	Put(key, val []byte, flags PutFlags) error
	// Del removes the entry under the cursor.
	Del() error
	Count() (uint64, error)
	Close()
}
