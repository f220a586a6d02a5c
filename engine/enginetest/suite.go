package enginetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/lmkv/engine"
)

// Features lists optional engine capabilities the suite should exercise.
type Features struct {
	Nested bool
}

// Run checks the behaviour the handle layer relies on.
func Run(t *testing.T, eng engine.Engine, feat Features) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, eng) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, eng) })
	t.Run("ReverseKey", func(t *testing.T) { testReverseKey(t, eng) })
	t.Run("DupSort", func(t *testing.T) { testDupSort(t, eng) })
	t.Run("NoOverwrite", func(t *testing.T) { testNoOverwrite(t, eng) })
	t.Run("CursorDelete", func(t *testing.T) { testCursorDelete(t, eng) })
	t.Run("CursorSeek", func(t *testing.T) { testCursorSeek(t, eng) })
	t.Run("Drop", func(t *testing.T) { testDrop(t, eng) })
	t.Run("DBsFull", func(t *testing.T) { testDBsFull(t, eng) })
	t.Run("FlagsFixed", func(t *testing.T) { testFlagsFixed(t, eng) })
	t.Run("ReadOnlyTxn", func(t *testing.T) { testReadOnlyTxn(t, eng) })
	t.Run("Copy", func(t *testing.T) { testCopy(t, eng) })
	t.Run("CreateAborted", func(t *testing.T) { testCreateAborted(t, eng) })
	if feat.Nested {
		t.Run("Nested", func(t *testing.T) { testNested(t, eng) })
	}
}

// Open opens a fresh store in a temporary directory and closes it when the
// test ends.
func Open(t testing.TB, eng engine.Engine) engine.Env {
	t.Helper()
	env, err := eng.Open(t.TempDir(), engine.Config{
		MapSize:    64 << 20,
		MaxReaders: 16,
		MaxDBs:     4,
		Mode:       0o644,
		Label:      "enginetest",
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func update(t *testing.T, env engine.Env, fn func(txn engine.Txn)) {
	t.Helper()
	txn, err := env.BeginTxn(nil, 0)
	require.NoError(t, err)
	// A failed require must not leave the writer lock held.
	defer txn.Abort()
	fn(txn)
	require.NoError(t, txn.Commit())
}

func view(t *testing.T, env engine.Env, fn func(txn engine.Txn)) {
	t.Helper()
	txn, err := env.BeginTxn(nil, engine.TxnReadOnly)
	require.NoError(t, err)
	defer txn.Abort()
	fn(txn)
}

func openDB(t *testing.T, txn engine.Txn, name string, flags engine.DBFlags) engine.DBI {
	t.Helper()
	dbi, err := txn.OpenDBI(name, flags|engine.Create)
	require.NoError(t, err)
	return dbi
}

// scan walks the whole table forward and returns "key=value" strings.
func scan(t *testing.T, txn engine.Txn, dbi engine.DBI) []string {
	t.Helper()
	cur, err := txn.OpenCursor(dbi)
	require.NoError(t, err)
	defer cur.Close()

	var out []string
	op := engine.First
	for {
		k, v, err := cur.Get(nil, op)
		if engine.IsNotFound(err) {
			return out
		}
		require.NoError(t, err)
		out = append(out, fmt.Sprintf("%s=%s", k, v))
		op = engine.Next
	}
}

func testRoundTrip(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "", 0)
		require.NoError(t, txn.Put(dbi, []byte("a"), []byte("1"), 0))
		require.NoError(t, txn.Put(dbi, []byte("empty"), nil, 0))
	})
	view(t, env, func(txn engine.Txn) {
		v, err := txn.Get(engine.MainDBI, []byte("a"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), v)

		v, err = txn.Get(engine.MainDBI, []byte("empty"))
		require.NoError(t, err)
		require.Empty(t, v)

		_, err = txn.Get(engine.MainDBI, []byte("missing"))
		require.Equal(t, engine.NotFound, engine.StatusOf(err))

		st, err := txn.Stat(engine.MainDBI)
		require.NoError(t, err)
		require.EqualValues(t, 2, st.Entries)
	})
}

func testOrdering(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "", 0)
		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, txn.Put(dbi, []byte(k), []byte(k), 0))
		}
	})
	view(t, env, func(txn engine.Txn) {
		require.Equal(t, []string{"a=a", "b=b", "c=c"}, scan(t, txn, engine.MainDBI))

		cur, err := txn.OpenCursor(engine.MainDBI)
		require.NoError(t, err)
		defer cur.Close()
		k, _, err := cur.Get(nil, engine.Last)
		require.NoError(t, err)
		require.Equal(t, "c", string(k))
		k, _, err = cur.Get(nil, engine.Prev)
		require.NoError(t, err)
		require.Equal(t, "b", string(k))
	})
}

func testReverseKey(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "hosts", engine.ReverseKey)
		for _, k := range []string{"2.com", "1.com", "a.org"} {
			require.NoError(t, txn.Put(dbi, []byte(k), []byte("x"), 0))
		}
		// Compared from the last byte: "gro.a" < "moc.1" < "moc.2".
		require.Equal(t, []string{"a.org=x", "1.com=x", "2.com=x"}, scan(t, txn, dbi))

		v, err := txn.Get(dbi, []byte("2.com"))
		require.NoError(t, err)
		require.Equal(t, "x", string(v))
	})
}

func testDupSort(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "dups", engine.DupSort)
		for _, v := range []string{"b", "a", "c"} {
			require.NoError(t, txn.Put(dbi, []byte("k"), []byte(v), 0))
		}
		require.NoError(t, txn.Put(dbi, []byte("z"), []byte("1"), 0))

		err := txn.Put(dbi, []byte("k"), []byte("a"), engine.NoDupData)
		require.Equal(t, engine.KeyExist, engine.StatusOf(err))

		require.Equal(t, []string{"k=a", "k=b", "k=c", "z=1"}, scan(t, txn, dbi))

		cur, err := txn.OpenCursor(dbi)
		require.NoError(t, err)
		_, _, err = cur.Get([]byte("k"), engine.SetKey)
		require.NoError(t, err)
		n, err := cur.Count()
		require.NoError(t, err)
		require.EqualValues(t, 3, n)
		cur.Close()

		v, err := txn.Get(dbi, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, "a", string(v))

		require.NoError(t, txn.Del(dbi, []byte("k"), []byte("b")))
		require.Equal(t, []string{"k=a", "k=c", "z=1"}, scan(t, txn, dbi))

		require.NoError(t, txn.Del(dbi, []byte("k"), nil))
		require.Equal(t, []string{"z=1"}, scan(t, txn, dbi))

		err = txn.Del(dbi, []byte("k"), nil)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))

		st, err := txn.Stat(dbi)
		require.NoError(t, err)
		require.EqualValues(t, 1, st.Entries)
	})
}

func testNoOverwrite(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "", 0)
		require.NoError(t, txn.Put(dbi, []byte("k"), []byte("old"), 0))
		err := txn.Put(dbi, []byte("k"), []byte("new"), engine.NoOverwrite)
		require.Equal(t, engine.KeyExist, engine.StatusOf(err))

		v, err := txn.Get(dbi, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, "old", string(v))
	})
}

func testCursorDelete(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "", 0)
		for _, k := range []string{"1", "2", "3"} {
			require.NoError(t, txn.Put(dbi, []byte(k), []byte(k), 0))
		}
		cur, err := txn.OpenCursor(dbi)
		require.NoError(t, err)
		defer cur.Close()

		_, _, err = cur.Get([]byte("2"), engine.SetKey)
		require.NoError(t, err)
		require.NoError(t, cur.Del())

		k, v, err := cur.Get(nil, engine.GetCurrent)
		require.NoError(t, err)
		require.Equal(t, "3", string(k))
		require.Equal(t, "3", string(v))

		// Deleting the last entry leaves no current entry.
		require.NoError(t, cur.Del())
		_, _, err = cur.Get(nil, engine.GetCurrent)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))

		require.Equal(t, []string{"1=1"}, scan(t, txn, dbi))
	})
}

func testCursorSeek(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "", 0)
		for _, k := range []string{"b", "d", "f"} {
			require.NoError(t, txn.Put(dbi, []byte(k), []byte(k), 0))
		}
		cur, err := txn.OpenCursor(dbi)
		require.NoError(t, err)
		defer cur.Close()

		k, _, err := cur.Get([]byte("c"), engine.SetRange)
		require.NoError(t, err)
		require.Equal(t, "d", string(k))

		_, _, err = cur.Get([]byte("c"), engine.SetKey)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))

		_, _, err = cur.Get([]byte("g"), engine.SetRange)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))

		// Writes through the transaction do not disturb cursor stepping.
		_, _, err = cur.Get([]byte("b"), engine.SetKey)
		require.NoError(t, err)
		require.NoError(t, txn.Put(dbi, []byte("c"), []byte("c"), 0))
		k, _, err = cur.Get(nil, engine.Next)
		require.NoError(t, err)
		require.Equal(t, "c", string(k))
	})
}

func testDrop(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	var dbi engine.DBI
	update(t, env, func(txn engine.Txn) {
		dbi = openDB(t, txn, "t", 0)
		require.NoError(t, txn.Put(dbi, []byte("k"), []byte("v"), 0))
	})
	update(t, env, func(txn engine.Txn) {
		require.NoError(t, txn.Drop(dbi, false))
		require.Empty(t, scan(t, txn, dbi))
		require.NoError(t, txn.Put(dbi, []byte("k2"), []byte("v"), 0))
	})
	update(t, env, func(txn engine.Txn) {
		require.NoError(t, txn.Drop(dbi, true))
	})
	update(t, env, func(txn engine.Txn) {
		_, err := txn.OpenDBI("t", 0)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))
	})
}

func testDBsFull(t *testing.T, eng engine.Engine) {
	env, err := eng.Open(t.TempDir(), engine.Config{MapSize: 16 << 20, MaxDBs: 1, Mode: 0o644})
	require.NoError(t, err)
	defer env.Close()

	txn, err := env.BeginTxn(nil, 0)
	require.NoError(t, err)
	defer txn.Abort()
	openDB(t, txn, "one", 0)
	_, err = txn.OpenDBI("two", engine.Create)
	require.Equal(t, engine.DBsFull, engine.StatusOf(err))
}

func testFlagsFixed(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		openDB(t, txn, "d", engine.DupSort)
	})
	view(t, env, func(txn engine.Txn) {
		_, err := txn.OpenDBI("d", 0)
		require.Equal(t, engine.Incompatible, engine.StatusOf(err))

		_, err = txn.OpenDBI("missing", 0)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))
	})
}

func testReadOnlyTxn(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) { openDB(t, txn, "", 0) })
	view(t, env, func(txn engine.Txn) {
		require.Error(t, txn.Put(engine.MainDBI, []byte("k"), []byte("v"), 0))
	})
}

func testCopy(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(txn engine.Txn) {
		main := openDB(t, txn, "", 0)
		require.NoError(t, txn.Put(main, []byte("k"), []byte("v"), 0))
		dups := openDB(t, txn, "dups", engine.DupSort)
		for _, v := range []string{"1", "2"} {
			require.NoError(t, txn.Put(dups, []byte("d"), []byte(v), 0))
		}
		rev := openDB(t, txn, "rev", engine.ReverseKey)
		for _, k := range []string{"ab", "ba"} {
			require.NoError(t, txn.Put(rev, []byte(k), []byte(k), 0))
		}
	})

	dst := t.TempDir()
	require.NoError(t, env.Copy(dst))
	cp, err := eng.Open(dst, engine.Config{Flags: engine.ReadOnly, MaxDBs: 4, Mode: 0o644})
	require.NoError(t, err)
	defer cp.Close()

	view(t, cp, func(txn engine.Txn) {
		require.Equal(t, []string{"k=v"}, nonTables(t, txn))

		dups, err := txn.OpenDBI("dups", engine.DupSort)
		require.NoError(t, err)
		require.Equal(t, []string{"d=1", "d=2"}, scan(t, txn, dups))

		rev, err := txn.OpenDBI("rev", engine.ReverseKey)
		require.NoError(t, err)
		require.Equal(t, []string{"ba=ba", "ab=ab"}, scan(t, txn, rev))
	})
}

// nonTables lists the main table's plain entries. Engines may keep named
// tables as records of the main table; those are skipped.
func nonTables(t *testing.T, txn engine.Txn) []string {
	t.Helper()
	var out []string
	for _, kv := range scan(t, txn, engine.MainDBI) {
		if strings.HasPrefix(kv, "dups=") || strings.HasPrefix(kv, "rev=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func testCreateAborted(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	txn, err := env.BeginTxn(nil, 0)
	require.NoError(t, err)
	dbi := openDB(t, txn, "gone", engine.DupSort)
	require.NoError(t, txn.Put(dbi, []byte("k"), []byte("v"), 0))
	txn.Abort()

	view(t, env, func(txn engine.Txn) {
		_, err := txn.OpenDBI("gone", engine.DupSort)
		require.Equal(t, engine.NotFound, engine.StatusOf(err))
	})
	update(t, env, func(txn engine.Txn) {
		dbi := openDB(t, txn, "gone", engine.DupSort)
		require.Empty(t, scan(t, txn, dbi))
	})
}

func testNested(t *testing.T, eng engine.Engine) {
	env := Open(t, eng)
	update(t, env, func(parent engine.Txn) {
		dbi := openDB(t, parent, "", 0)

		child, err := env.BeginTxn(parent, 0)
		require.NoError(t, err)
		require.NoError(t, child.Put(dbi, []byte("kept"), []byte("1"), 0))
		require.NoError(t, child.Commit())

		child, err = env.BeginTxn(parent, 0)
		require.NoError(t, err)
		require.NoError(t, child.Put(dbi, []byte("lost"), []byte("1"), 0))
		child.Abort()

		require.Equal(t, []string{"kept=1"}, scan(t, parent, dbi))
	})
}
