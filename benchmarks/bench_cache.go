package benchmarks

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/lmkv"
)

const (
	benchTable   = "bench"
	benchMapSize = 1 << 30
	batchSize    = 100_000
)

var (
	cacheMu  sync.Mutex
	cacheDir string
	lmkvEnvs = make(map[string]*lmkv.Environment)
	mdbxEnvs = make(map[string]*mdbxgo.Env)
	boltDBs  = make(map[string]*bolt.DB)
)

func benchKey(key []byte, i int) {
	binary.BigEndian.PutUint64(key, uint64(i))
}

func benchDir(b *testing.B, name string) string {
	if cacheDir == "" {
		dir, err := os.MkdirTemp("", "lmkv-bench-")
		if err != nil {
			b.Fatal(err)
		}
		cacheDir = dir
	}
	return filepath.Join(cacheDir, name)
}

// getCachedEnv returns an lmkv environment on engine whose "bench" database
// holds size sequential 8-byte keys with 32-byte values.
func getCachedEnv(b *testing.B, engine string, size int) (*lmkv.Environment, *lmkv.Database) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	name := fmt.Sprintf("lmkv_%s_%d", engine, size)
	env, ok := lmkvEnvs[name]
	if !ok {
		var err error
		env, err = lmkv.Open(lmkv.Config{
			Path:       benchDir(b, name),
			Engine:     engine,
			MapSize:    benchMapSize,
			MaxDBs:     4,
			NoMetaSync: true,
		})
		if err != nil {
			b.Fatal(err)
		}
		b.Logf("Creating %s with %d keys...", name, size)
		populateEnv(b, env, size)
		lmkvEnvs[name] = env
	}
	db, err := env.OpenDatabase(benchTable, lmkv.DatabaseOptions{Values: lmkv.ViewValues})
	if err != nil {
		b.Fatal(err)
	}
	return env, db
}

func populateEnv(b *testing.B, env *lmkv.Environment, numKeys int) {
	db, err := env.OpenDatabase(benchTable, lmkv.DatabaseOptions{})
	if err != nil {
		b.Fatal(err)
	}
	key := make([]byte, 8)
	val := make([]byte, 32)
	for start := 0; start < numKeys; start += batchSize {
		err := env.Update(func(txn *lmkv.Txn) error {
			for i := start; i < min(start+batchSize, numKeys); i++ {
				benchKey(key, i)
				benchKey(val, i)
				if _, err := txn.Put(db, key, val, lmkv.PutOptions{Append: true}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// getCachedMdbx returns a raw mdbx-go environment with the same contents as
// getCachedEnv.
func getCachedMdbx(b *testing.B, size int) *mdbxgo.Env {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	name := fmt.Sprintf("mdbx_%d", size)
	if env, ok := mdbxEnvs[name]; ok {
		return env
	}
	path := benchDir(b, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		b.Fatal(err)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	env, err := mdbxgo.NewEnv(mdbxgo.Label("bench"))
	if err != nil {
		b.Fatal(err)
	}
	env.SetOption(mdbxgo.OptMaxDB, 4)
	env.SetGeometry(-1, -1, benchMapSize, -1, -1, -1)
	if err := env.Open(path, mdbxgo.NoMetaSync, 0o644); err != nil {
		b.Fatal(err)
	}

	b.Logf("Creating %s with %d keys...", name, size)
	key := make([]byte, 8)
	val := make([]byte, 32)
	for start := 0; start < size; start += batchSize {
		txn, err := env.BeginTxn(nil, 0)
		if err != nil {
			b.Fatal(err)
		}
		dbi, err := txn.OpenDBI(benchTable, mdbxgo.Create, nil, nil)
		if err != nil {
			b.Fatal(err)
		}
		for i := start; i < min(start+batchSize, size); i++ {
			benchKey(key, i)
			benchKey(val, i)
			if err := txn.Put(dbi, key, val, mdbxgo.Append); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := txn.Commit(); err != nil {
			b.Fatal(err)
		}
	}
	mdbxEnvs[name] = env
	return env
}

// getCachedBolt returns a raw bbolt database with the same contents as
// getCachedEnv.
func getCachedBolt(b *testing.B, size int) *bolt.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	name := fmt.Sprintf("bolt_%d", size)
	if db, ok := boltDBs[name]; ok {
		return db
	}
	db, err := bolt.Open(benchDir(b, name+".db"), 0o644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.Logf("Creating %s with %d keys...", name, size)
	key := make([]byte, 8)
	val := make([]byte, 32)
	for start := 0; start < size; start += batchSize {
		err := db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists([]byte(benchTable))
			if err != nil {
				return err
			}
			for i := start; i < min(start+batchSize, size); i++ {
				benchKey(key, i)
				benchKey(val, i)
				if err := bucket.Put(key, val); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	boltDBs[name] = db
	return db
}

// CleanupBenchCache closes every cached store and removes its files.
func CleanupBenchCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	for _, env := range lmkvEnvs {
		env.Close()
	}
	for _, env := range mdbxEnvs {
		env.Close()
	}
	for _, db := range boltDBs {
		db.Close()
	}
	lmkvEnvs = make(map[string]*lmkv.Environment)
	mdbxEnvs = make(map[string]*mdbxgo.Env)
	boltDBs = make(map[string]*bolt.DB)
	if cacheDir != "" {
		os.RemoveAll(cacheDir)
		cacheDir = ""
	}
}
