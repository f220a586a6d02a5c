package benchmarks

import (
	"testing"

	"github.com/Giulio2002/lmkv"
)

// BenchmarkHandles measures the cost the dependency graph adds to handle
// lifecycles.
func BenchmarkHandles(b *testing.B) {
	for _, engine := range []string{"mdbx", "bolt"} {
		b.Run("TxnCycle/"+engine, func(b *testing.B) { benchTxnCycle(b, engine) })
		b.Run("CursorCycle/"+engine, func(b *testing.B) { benchCursorCycle(b, engine) })
		b.Run("CloseCascade/"+engine, func(b *testing.B) { benchCloseCascade(b, engine) })
	}
}

func benchTxnCycle(b *testing.B, engine string) {
	env, _ := getCachedEnv(b, engine, 1000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		txn, err := env.Begin(lmkv.TxnOptions{ReadOnly: true})
		if err != nil {
			b.Fatal(err)
		}
		txn.Abort()
	}
}

func benchCursorCycle(b *testing.B, engine string) {
	env, db := getCachedEnv(b, engine, 1000)
	txn, err := env.Begin(lmkv.TxnOptions{ReadOnly: true})
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cur, err := txn.Cursor(db)
		if err != nil {
			b.Fatal(err)
		}
		cur.Close()
	}
}

// benchCloseCascade ends a transaction holding many cursors.
func benchCloseCascade(b *testing.B, engine string) {
	env, db := getCachedEnv(b, engine, 1000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		txn, err := env.Begin(lmkv.TxnOptions{ReadOnly: true})
		if err != nil {
			b.Fatal(err)
		}
		for j := 0; j < 64; j++ {
			if _, err := txn.Cursor(db); err != nil {
				b.Fatal(err)
			}
		}
		txn.Abort()
	}
}
