package boltengine

import (
	"testing"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/engine/enginetest"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, Engine{}, enginetest.Features{})
}

func TestRegistered(t *testing.T) {
	if _, ok := engine.Lookup(Name); !ok {
		t.Fatalf("engine %q not registered", Name)
	}
}

func TestNestedUnsupported(t *testing.T) {
	env := enginetest.Open(t, Engine{})
	parent, err := env.BeginTxn(nil, 0)
	if err != nil {
		t.Fatalf("BeginTxn failed: %v", err)
	}
	defer parent.Abort()

	if _, err := env.BeginTxn(parent, 0); engine.StatusOf(err) != engine.Incompatible {
		t.Errorf("nested BeginTxn: err = %v, want Incompatible", err)
	}
}

func TestReadersFull(t *testing.T) {
	env, err := Engine{}.Open(t.TempDir(), engine.Config{MaxReaders: 2})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer env.Close()

	var txns []engine.Txn
	for i := 0; i < 2; i++ {
		txn, err := env.BeginTxn(nil, engine.TxnReadOnly)
		if err != nil {
			t.Fatalf("BeginTxn(%d) failed: %v", i, err)
		}
		txns = append(txns, txn)
	}
	if _, err := env.BeginTxn(nil, engine.TxnReadOnly); engine.StatusOf(err) != engine.ReadersFull {
		t.Errorf("third reader: err = %v, want ReadersFull", err)
	}

	// Releasing a slot makes room again.
	txns[0].Abort()
	txn, err := env.BeginTxn(nil, engine.TxnReadOnly)
	if err != nil {
		t.Fatalf("BeginTxn after release failed: %v", err)
	}
	txn.Abort()
	txns[1].Abort()

	info, err := env.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.NumReaders != 0 {
		t.Errorf("NumReaders = %d, want 0", info.NumReaders)
	}
}

func TestMapFull(t *testing.T) {
	env, err := Engine{}.Open(t.TempDir(), engine.Config{MapSize: 256 << 10})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer env.Close()

	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		t.Fatalf("BeginTxn failed: %v", err)
	}
	val := make([]byte, 4096)
	for i := 0; i < 512; i++ {
		key := []byte{byte(i >> 8), byte(i)}
		if err := txn.Put(engine.MainDBI, key, val, 0); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	if err := txn.Commit(); engine.StatusOf(err) != engine.MapFull {
		t.Errorf("Commit: err = %v, want MapFull", err)
	}
}

func TestReopenKeepsFlags(t *testing.T) {
	dir := t.TempDir()
	cfg := engine.Config{MaxDBs: 2}

	env, err := Engine{}.Open(dir, cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	txn, _ := env.BeginTxn(nil, 0)
	dbi, err := txn.OpenDBI("rev", engine.Create|engine.ReverseKey)
	if err != nil {
		t.Fatalf("OpenDBI failed: %v", err)
	}
	if err := txn.Put(dbi, []byte("ab"), []byte("1"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	env.Close()

	env, err = Engine{}.Open(dir, cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer env.Close()
	txn, _ = env.BeginTxn(nil, engine.TxnReadOnly)
	defer txn.Abort()
	if _, err := txn.OpenDBI("rev", 0); engine.StatusOf(err) != engine.Incompatible {
		t.Errorf("OpenDBI without ReverseKey: err = %v, want Incompatible", err)
	}
	dbi, err = txn.OpenDBI("rev", engine.ReverseKey)
	if err != nil {
		t.Fatalf("OpenDBI failed: %v", err)
	}
	v, err := txn.Get(dbi, []byte("ab"))
	if err != nil || string(v) != "1" {
		t.Errorf("Get(ab) = %q, %v; want 1", v, err)
	}
}

func TestReadOnlyMissingStore(t *testing.T) {
	_, err := Engine{}.Open(t.TempDir(), engine.Config{Flags: engine.ReadOnly})
	if engine.StatusOf(err) != engine.ENOENT {
		t.Errorf("Open read-only on empty dir: err = %v, want ENOENT", err)
	}
}

func TestReversed(t *testing.T) {
	if got := string(reversed([]byte("1.com"))); got != "moc.1" {
		t.Errorf("reversed = %q, want moc.1", got)
	}
	if got := reversed(nil); len(got) != 0 {
		t.Errorf("reversed(nil) = %q", got)
	}
}
