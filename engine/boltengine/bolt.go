// Package boltengine runs lmkv on bbolt, a pure-Go B+tree store.
//
// bbolt has no sorted duplicates, reverse-key ordering, nested transactions
// or hard resource limits, so this adapter supplies them:
//
//   - every table is a bucket and a metadata bucket records its flags;
//   - a dupsort table keeps one nested bucket per key, whose keys are the
//     values of that key;
//   - a reverse-key table stores keys byte-reversed;
//   - MaxDBs, MaxReaders and MapSize are checked by the adapter.
//
// Nested transactions are reported as Incompatible.
package boltengine

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/Giulio2002/lmkv/engine"
)

// Name is the registry name of this engine.
const Name = "bolt"

// DataFile is the file name used inside a store directory.
const DataFile = "data.db"

// DefaultTimeout bounds the wait for the file lock held by another process.
const DefaultTimeout = 5 * time.Second

var (
	mainBucket = []byte("\x00main")
	metaBucket = []byte("\x00meta")
)

func init() {
	engine.Register(Name, Engine{})
}

// Engine opens bbolt environments.
type Engine struct {
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Open implements engine.Engine.
func (e Engine) Open(path string, cfg engine.Config) (engine.Env, error) {
	file := path
	if cfg.Flags&engine.NoSubdir == 0 {
		file = filepath.Join(path, DataFile)
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	readOnly := cfg.Flags&engine.ReadOnly != 0
	opts := &bolt.Options{
		Timeout:        timeout,
		ReadOnly:       readOnly,
		NoSync:         cfg.Flags&(engine.NoSync|engine.MapAsync) != 0,
		NoFreelistSync: cfg.Flags&engine.NoMetaSync != 0,
	}
	if readOnly {
		if _, err := os.Stat(file); err != nil {
			return nil, translate(err)
		}
	}
	mode := cfg.Mode
	if mode == 0 {
		mode = 0o644
	}
	db, err := bolt.Open(file, mode, opts)
	if err != nil {
		return nil, translate(err)
	}
	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists(mainBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, translate(err)
		}
	}

	env := &env{
		db:     db,
		cfg:    cfg,
		mode:   mode,
		byName: make(map[string]engine.DBI),
		tables: make([]table, engine.MainDBI+1),
	}
	env.tables[engine.MainDBI] = table{bucket: mainBucket, open: true}
	return env, nil
}

type table struct {
	bucket []byte
	flags  engine.DBFlags
	open   bool
}

type env struct {
	db   *bolt.DB
	cfg  engine.Config
	mode os.FileMode

	mu     sync.Mutex
	byName map[string]engine.DBI
	tables []table
	named  int

	readers atomic.Int32
}

func (e *env) BeginTxn(parent engine.Txn, flags engine.TxnFlags) (engine.Txn, error) {
	if parent != nil {
		return nil, engine.Incompatible
	}
	readOnly := flags&engine.TxnReadOnly != 0
	if readOnly {
		if n := e.readers.Add(1); e.cfg.MaxReaders > 0 && int(n) > e.cfg.MaxReaders {
			e.readers.Add(-1)
			return nil, engine.ReadersFull
		}
	}
	tx, err := e.db.Begin(!readOnly)
	if err != nil {
		if readOnly {
			e.readers.Add(-1)
		}
		return nil, translate(err)
	}
	return &txn{env: e, tx: tx, readOnly: readOnly}, nil
}

func (e *env) Copy(dir string) error {
	return translate(e.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filepath.Join(dir, DataFile), e.mode)
	}))
}

func (e *env) Sync(bool) error {
	return translate(e.db.Sync())
}

func (e *env) Stat() (engine.Stat, error) {
	var st engine.Stat
	err := e.db.View(func(tx *bolt.Tx) error {
		t := &txn{env: e, tx: tx, readOnly: true}
		var err error
		st, err = t.Stat(engine.MainDBI)
		return err
	})
	return st, translate(err)
}

func (e *env) Info() (engine.Info, error) {
	info := engine.Info{
		MapSize:    e.cfg.MapSize,
		MaxReaders: uint32(e.cfg.MaxReaders),
		NumReaders: uint32(e.readers.Load()),
	}
	err := e.db.View(func(tx *bolt.Tx) error {
		info.LastPage = tx.Size()/int64(e.db.Info().PageSize) - 1
		info.LastTxnID = int64(tx.ID())
		return nil
	})
	return info, translate(err)
}

func (e *env) CloseDBI(dbi engine.DBI) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forget(dbi)
}

// forget drops a named table handle; e.mu must be held.
func (e *env) forget(dbi engine.DBI) {
	if dbi <= engine.MainDBI || int(dbi) >= len(e.tables) || !e.tables[dbi].open {
		return
	}
	delete(e.byName, string(e.tables[dbi].bucket))
	e.tables[dbi] = table{}
	e.named--
}

func (e *env) Close() error {
	return translate(e.db.Close())
}

func (e *env) table(dbi engine.DBI) (table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(dbi) >= len(e.tables) || !e.tables[dbi].open {
		return table{}, false
	}
	return e.tables[dbi], true
}

// register records an opened table and returns its handle, reusing the
// handle of a table opened earlier.
func (e *env) register(name []byte, flags engine.DBFlags) (engine.DBI, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dbi, ok := e.byName[string(name)]; ok {
		return dbi, nil
	}
	if e.named >= e.cfg.MaxDBs {
		return 0, engine.DBsFull
	}
	t := table{bucket: append([]byte(nil), name...), flags: flags, open: true}
	dbi := engine.DBI(len(e.tables))
	for i := engine.MainDBI + 1; int(i) < len(e.tables); i++ {
		if !e.tables[i].open {
			dbi = i
			break
		}
	}
	if int(dbi) == len(e.tables) {
		e.tables = append(e.tables, t)
	} else {
		e.tables[dbi] = t
	}
	e.byName[string(name)] = dbi
	e.named++
	return dbi, nil
}

type txn struct {
	env      *env
	tx       *bolt.Tx
	readOnly bool
	// mutations counts writes; cursors re-seek when it moves.
	mutations uint64
	// written estimates the bytes this transaction adds to the file. bbolt
	// only allocates pages during Commit, so the map limit is checked
	// against the size at begin plus this estimate.
	written int64
	done    bool
	// created lists tables created here; they are forgotten if the
	// transaction does not commit.
	created []engine.DBI
}

// leafElementSize is the per-entry header bbolt stores on leaf pages.
const leafElementSize = 16

const persistentFlags = engine.ReverseKey | engine.DupSort

func (t *txn) OpenDBI(name string, flags engine.DBFlags) (engine.DBI, error) {
	want := flags & persistentFlags
	bucket := mainBucket
	if name != "" {
		if name[0] == 0 {
			return 0, engine.BadValSize
		}
		bucket = []byte(name)
	}

	stored, known := t.storedFlags(bucket)
	switch {
	case known && stored != want:
		return 0, engine.Incompatible
	case !known && name == "" && want == 0:
	case !known:
		if name != "" && flags&engine.Create == 0 {
			return 0, engine.NotFound
		}
		if t.readOnly {
			return 0, engine.EACCES
		}
		if name != "" {
			if err := t.env.reserve(); err != nil {
				return 0, err
			}
		}
		if err := t.createTable(bucket, want); err != nil {
			return 0, translate(err)
		}
	}

	if name == "" {
		t.env.mu.Lock()
		t.env.tables[engine.MainDBI].flags = want
		t.env.mu.Unlock()
		return engine.MainDBI, nil
	}
	dbi, err := t.env.register(bucket, want)
	if err == nil && !known {
		t.created = append(t.created, dbi)
	}
	return dbi, err
}

// discard forgets the tables created by an uncommitted transaction.
func (t *txn) discard() {
	t.env.mu.Lock()
	for _, dbi := range t.created {
		t.env.forget(dbi)
	}
	t.env.mu.Unlock()
	t.created = nil
}

// reserve fails with DBsFull when no named table handle is left.
func (e *env) reserve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.named >= e.cfg.MaxDBs {
		return engine.DBsFull
	}
	return nil
}

func (t *txn) storedFlags(bucket []byte) (engine.DBFlags, bool) {
	meta := t.tx.Bucket(metaBucket)
	if meta == nil {
		return 0, false
	}
	v := meta.Get(bucket)
	if len(v) != 8 {
		return 0, false
	}
	return engine.DBFlags(binary.BigEndian.Uint64(v)), true
}

func (t *txn) createTable(bucket []byte, flags engine.DBFlags) error {
	if _, err := t.tx.CreateBucketIfNotExists(bucket); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(flags))
	t.mutations++
	return t.tx.Bucket(metaBucket).Put(bucket, buf[:])
}

func (t *txn) bucket(dbi engine.DBI) (*bolt.Bucket, table, error) {
	tbl, ok := t.env.table(dbi)
	if !ok {
		return nil, table{}, engine.BadDBI
	}
	b := t.tx.Bucket(tbl.bucket)
	if b == nil {
		return nil, table{}, engine.BadDBI
	}
	return b, tbl, nil
}

func (t *txn) Drop(dbi engine.DBI, del bool) error {
	if t.readOnly {
		return engine.EACCES
	}
	_, tbl, err := t.bucket(dbi)
	if err != nil {
		return err
	}
	t.mutations++
	if err := t.tx.DeleteBucket(tbl.bucket); err != nil {
		return translate(err)
	}
	if del && dbi != engine.MainDBI {
		if err := t.tx.Bucket(metaBucket).Delete(tbl.bucket); err != nil {
			return translate(err)
		}
		t.env.mu.Lock()
		t.env.forget(dbi)
		t.env.mu.Unlock()
		return nil
	}
	_, err = t.tx.CreateBucket(tbl.bucket)
	return translate(err)
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	b, tbl, err := t.bucket(dbi)
	if err != nil {
		return nil, err
	}
	k := encodeKey(key, tbl.flags)
	if len(k) == 0 {
		return nil, engine.NotFound
	}
	if tbl.flags&engine.DupSort != 0 {
		sub := b.Bucket(k)
		if sub == nil {
			return nil, engine.NotFound
		}
		v, _ := sub.Cursor().First()
		if v == nil {
			return nil, engine.NotFound
		}
		return v, nil
	}
	v, ok := lookup(b, k)
	if !ok {
		return nil, engine.NotFound
	}
	return v, nil
}

// lookup distinguishes a missing key from an empty value.
func lookup(b *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || string(k) != string(key) {
		return nil, false
	}
	if v == nil {
		v = []byte{}
	}
	return v, true
}

func (t *txn) Put(dbi engine.DBI, key, val []byte, flags engine.PutFlags) error {
	if t.readOnly {
		return engine.EACCES
	}
	b, tbl, err := t.bucket(dbi)
	if err != nil {
		return err
	}
	return t.put(b, tbl, key, val, flags)
}

func (t *txn) put(b *bolt.Bucket, tbl table, key, val []byte, flags engine.PutFlags) error {
	k := encodeKey(key, tbl.flags)
	if len(k) == 0 {
		return engine.BadValSize
	}
	if val == nil {
		val = []byte{}
	}

	if tbl.flags&engine.DupSort == 0 {
		if flags&engine.NoOverwrite != 0 {
			if _, ok := lookup(b, k); ok {
				return engine.KeyExist
			}
		}
		t.mutations++
		t.written += int64(len(k) + len(val) + leafElementSize)
		return translate(b.Put(k, val))
	}

	if len(val) == 0 {
		return engine.BadValSize
	}
	sub := b.Bucket(k)
	if sub != nil {
		if flags&engine.NoOverwrite != 0 {
			return engine.KeyExist
		}
		if _, ok := lookup(sub, val); ok && flags&engine.NoDupData != 0 {
			return engine.KeyExist
		}
	} else {
		var err error
		if sub, err = b.CreateBucket(k); err != nil {
			return translate(err)
		}
	}
	t.mutations++
	t.written += int64(len(val) + leafElementSize)
	return translate(sub.Put(val, []byte{}))
}

func (t *txn) Del(dbi engine.DBI, key, val []byte) error {
	if t.readOnly {
		return engine.EACCES
	}
	b, tbl, err := t.bucket(dbi)
	if err != nil {
		return err
	}
	k := encodeKey(key, tbl.flags)
	if len(k) == 0 {
		return engine.NotFound
	}
	if tbl.flags&engine.DupSort == 0 {
		if _, ok := lookup(b, k); !ok {
			return engine.NotFound
		}
		t.mutations++
		return translate(b.Delete(k))
	}

	sub := b.Bucket(k)
	if sub == nil {
		return engine.NotFound
	}
	t.mutations++
	if val == nil {
		return translate(b.DeleteBucket(k))
	}
	return t.delDup(b, sub, k, val)
}

// delDup removes one value of a dupsort key and the key once it is empty.
func (t *txn) delDup(b, sub *bolt.Bucket, key, val []byte) error {
	if _, ok := lookup(sub, val); !ok {
		return engine.NotFound
	}
	if err := sub.Delete(val); err != nil {
		return translate(err)
	}
	if first, _ := sub.Cursor().First(); first == nil {
		return translate(b.DeleteBucket(key))
	}
	return nil
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	b, tbl, err := t.bucket(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{
		txn: t,
		dbi: dbi,
		b:   b,
		dup: tbl.flags&engine.DupSort != 0,
		rev: tbl.flags&engine.ReverseKey != 0,
	}, nil
}

func (t *txn) Stat(dbi engine.DBI) (engine.Stat, error) {
	b, tbl, err := t.bucket(dbi)
	if err != nil {
		return engine.Stat{}, err
	}
	bs := b.Stats()
	st := engine.Stat{
		PageSize:      uint32(t.env.db.Info().PageSize),
		Depth:         uint32(bs.Depth),
		BranchPages:   uint64(bs.BranchPageN),
		LeafPages:     uint64(bs.LeafPageN),
		OverflowPages: uint64(bs.BranchOverflowN + bs.LeafOverflowN),
	}
	// Page statistics only cover committed pages, so entries are counted.
	err = b.ForEach(func(k, v []byte) error {
		if tbl.flags&engine.DupSort == 0 {
			st.Entries++
			return nil
		}
		if sub := b.Bucket(k); sub != nil {
			return sub.ForEach(func(_, _ []byte) error {
				st.Entries++
				return nil
			})
		}
		return nil
	})
	return st, translate(err)
}

func (t *txn) Commit() error {
	if t.done {
		return engine.BadTxn
	}
	t.done = true
	if t.readOnly {
		t.env.readers.Add(-1)
		return translate(t.tx.Rollback())
	}
	if limit := t.env.cfg.MapSize; limit > 0 && t.tx.Size()+t.written > limit {
		_ = t.tx.Rollback()
		t.discard()
		return engine.MapFull
	}
	if err := t.tx.Commit(); err != nil {
		t.discard()
		return translate(err)
	}
	return nil
}

func (t *txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	if t.readOnly {
		t.env.readers.Add(-1)
	}
	_ = t.tx.Rollback()
	t.discard()
}

// encodeKey returns the stored form of key.
func encodeKey(key []byte, flags engine.DBFlags) []byte {
	if flags&engine.ReverseKey == 0 {
		return key
	}
	return reversed(key)
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// translate maps bbolt errors onto engine status codes.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, berrors.ErrTxNotWritable), errors.Is(err, berrors.ErrDatabaseReadOnly):
		return engine.EACCES
	case errors.Is(err, berrors.ErrKeyRequired), errors.Is(err, berrors.ErrKeyTooLarge),
		errors.Is(err, berrors.ErrValueTooLarge):
		return engine.BadValSize
	case errors.Is(err, berrors.ErrBucketNotFound):
		return engine.BadDBI
	case errors.Is(err, berrors.ErrIncompatibleValue), errors.Is(err, berrors.ErrBucketExists):
		return engine.Incompatible
	case errors.Is(err, berrors.ErrTimeout):
		return engine.Busy
	case errors.Is(err, berrors.ErrTxClosed):
		return engine.BadTxn
	case errors.Is(err, berrors.ErrVersionMismatch):
		return engine.VersionMismatch
	case errors.Is(err, berrors.ErrInvalid), errors.Is(err, berrors.ErrChecksum):
		return engine.Invalid
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return engine.Status(errno)
	}
	return err
}
