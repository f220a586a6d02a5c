package mdbxengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/engine/enginetest"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, Engine{}, enginetest.Features{Nested: true})
}

func TestRegistered(t *testing.T) {
	if _, ok := engine.Lookup(Name); !ok {
		t.Fatalf("engine %q not registered", Name)
	}
}

func TestCopy(t *testing.T) {
	env := enginetest.Open(t, Engine{})
	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		t.Fatalf("BeginTxn failed: %v", err)
	}
	if err := txn.Put(engine.MainDBI, []byte("k"), []byte("v"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	dst := t.TempDir()
	if err := env.Copy(dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, DataFile)); err != nil {
		t.Fatalf("copy has no data file: %v", err)
	}

	cp, err := Engine{}.Open(dst, engine.Config{Flags: engine.ReadOnly, Mode: 0o644})
	if err != nil {
		t.Fatalf("open copy failed: %v", err)
	}
	defer cp.Close()
	rtxn, err := cp.BeginTxn(nil, engine.TxnReadOnly)
	if err != nil {
		t.Fatalf("BeginTxn on copy failed: %v", err)
	}
	defer rtxn.Abort()
	v, err := rtxn.Get(engine.MainDBI, []byte("k"))
	if err != nil || string(v) != "v" {
		t.Errorf("Get(k) on copy = %q, %v; want v", v, err)
	}
}

func TestGetCurrentUnpositioned(t *testing.T) {
	env := enginetest.Open(t, Engine{})
	txn, err := env.BeginTxn(nil, engine.TxnReadOnly)
	if err != nil {
		t.Fatalf("BeginTxn failed: %v", err)
	}
	defer txn.Abort()
	cur, err := txn.OpenCursor(engine.MainDBI)
	if err != nil {
		t.Fatalf("OpenCursor failed: %v", err)
	}
	defer cur.Close()

	if _, _, err := cur.Get(nil, engine.GetCurrent); !engine.IsNotFound(err) {
		t.Errorf("GetCurrent on fresh cursor: err = %v, want NotFound", err)
	}
}

func TestEnvFlags(t *testing.T) {
	tests := []struct {
		in   engine.EnvFlags
		want uint
	}{
		{0, 0},
		{engine.NoSync, envFlags(engine.MapAsync)},
		{engine.NoSubdir | engine.ReadOnly, envFlags(engine.NoSubdir) | envFlags(engine.ReadOnly)},
	}
	for _, tt := range tests {
		if got := envFlags(tt.in); got != tt.want {
			t.Errorf("envFlags(%b) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
