package benchmarks

import (
	"fmt"
	"runtime"
	"testing"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/lmkv"
)

// BenchmarkWrite measures batched sequential puts, one transaction per
// batch.
func BenchmarkWrite(b *testing.B) {
	for _, batch := range []int{1, 100, 10_000} {
		b.Run(fmt.Sprintf("Put/lmkv-mdbx/batch=%d", batch), func(b *testing.B) { benchPutLmkv(b, "mdbx", batch) })
		b.Run(fmt.Sprintf("Put/lmkv-bolt/batch=%d", batch), func(b *testing.B) { benchPutLmkv(b, "bolt", batch) })
		b.Run(fmt.Sprintf("Put/mdbx/batch=%d", batch), func(b *testing.B) { benchPutMdbx(b, batch) })
		b.Run(fmt.Sprintf("Put/bolt/batch=%d", batch), func(b *testing.B) { benchPutBolt(b, batch) })
	}
}

func benchPutLmkv(b *testing.B, engine string, batch int) {
	env, err := lmkv.Open(lmkv.Config{
		Path:    b.TempDir(),
		Engine:  engine,
		MapSize: benchMapSize,
		NoSync:  true,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer env.Close()

	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i += batch {
		err := env.Update(func(txn *lmkv.Txn) error {
			for j := i; j < min(i+batch, b.N); j++ {
				benchKey(key, j)
				if _, err := txn.Put(nil, key, val, lmkv.PutOptions{}); err != nil {
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

func benchPutMdbx(b *testing.B, batch int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := mdbxgo.NewEnv(mdbxgo.Label("bench"))
	if err != nil {
		b.Fatal(err)
	}
	defer env.Close()
	env.SetGeometry(-1, -1, benchMapSize, -1, -1, -1)
	if err := env.Open(b.TempDir(), mdbxgo.SafeNoSync, 0o644); err != nil {
		b.Fatal(err)
	}

	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i += batch {
		txn, err := env.BeginTxn(nil, 0)
		if err != nil {
			b.Fatal(err)
		}
		dbi, err := txn.OpenRoot(0)
		if err != nil {
			b.Fatal(err)
		}
		for j := i; j < min(i+batch, b.N); j++ {
			benchKey(key, j)
			if err := txn.Put(dbi, key, val, mdbxgo.Upsert); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := txn.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchPutBolt(b *testing.B, batch int) {
	db, err := bolt.Open(b.TempDir()+"/bolt.db", 0o644, &bolt.Options{NoSync: true, NoFreelistSync: true})
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i += batch {
		err := db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists([]byte(benchTable))
			if err != nil {
				return err
			}
			for j := i; j < min(i+batch, b.N); j++ {
				benchKey(key, j)
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
}
