package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Giulio2002/lmkv"
)

type commander struct {
	env  *lmkv.Environment
	db   *lmkv.Database
	out  io.Writer
	zstd bool
}

func (c *commander) exec(cmd string, args []string) error {
	switch cmd {
	case "stat":
		return c.stat()
	case "info":
		return c.info()
	case "copy":
		if len(args) < 1 {
			return fmt.Errorf("%w: copy <dir>", errMissingArg)
		}
		return c.env.Copy(args[0])
	case "dump":
		if len(args) < 1 {
			return fmt.Errorf("%w: dump <file>", errMissingArg)
		}
		n, err := c.dump(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "dumped %d entries\n", n)
	case "load":
		if len(args) < 1 {
			return fmt.Errorf("%w: load <file>", errMissingArg)
		}
		n, err := c.load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "loaded %d entries\n", n)
	case "get":
		if len(args) < 1 {
			return fmt.Errorf("%w: get <key>", errMissingArg)
		}
		return c.get(args[0])
	case "put":
		if len(args) < 2 {
			return fmt.Errorf("%w: put <key> <value>", errMissingArg)
		}
		return c.put(args[0], args[1])
	case "del", "delete":
		if len(args) < 1 {
			return fmt.Errorf("%w: del <key> [value]", errMissingArg)
		}
		var val string
		if len(args) > 1 {
			val = args[1]
		}
		return c.del(args[0], val)
	case "scan", "ls":
		var prefix string
		if len(args) > 0 {
			prefix = args[0]
		}
		return c.scan(prefix)
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
	}
	return nil
}

func (c *commander) stat() error {
	txn, err := c.env.Begin(lmkv.TxnOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer txn.Abort()
	st, err := txn.Stat(c.db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "page_size:      %d\n", st.PageSize)
	fmt.Fprintf(c.out, "depth:          %d\n", st.Depth)
	fmt.Fprintf(c.out, "branch_pages:   %d\n", st.BranchPages)
	fmt.Fprintf(c.out, "leaf_pages:     %d\n", st.LeafPages)
	fmt.Fprintf(c.out, "overflow_pages: %d\n", st.OverflowPages)
	fmt.Fprintf(c.out, "entries:        %d\n", st.Entries)
	return nil
}

func (c *commander) info() error {
	info, err := c.env.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "path:        %s\n", c.env.Path())
	fmt.Fprintf(c.out, "map_size:    %d\n", info.MapSize)
	fmt.Fprintf(c.out, "last_page:   %d\n", info.LastPage)
	fmt.Fprintf(c.out, "last_txn_id: %d\n", info.LastTxnID)
	fmt.Fprintf(c.out, "max_readers: %d\n", info.MaxReaders)
	fmt.Fprintf(c.out, "num_readers: %d\n", info.NumReaders)
	fmt.Fprintf(c.out, "databases:   %s\n", strings.Join(c.env.Databases(), ","))
	return nil
}

func (c *commander) get(key string) error {
	val, ok, err := c.env.Get(c.db, []byte(key))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key not found: %s", key)
	}
	fmt.Fprintln(c.out, printable(val))
	return nil
}

func (c *commander) put(key, val string) error {
	ok, err := c.env.Put(c.db, []byte(key), []byte(val), lmkv.PutOptions{AllowDuplicate: c.db.DupSort()})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "exists")
		return nil
	}
	fmt.Fprintln(c.out, "OK")
	return nil
}

func (c *commander) del(key, val string) error {
	ok, err := c.env.Delete(c.db, []byte(key), []byte(val))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "not found")
		return nil
	}
	fmt.Fprintln(c.out, "deleted")
	return nil
}

func (c *commander) scan(prefix string) error {
	return c.env.View(func(txn *lmkv.Txn) error {
		cur, err := txn.Cursor(c.db)
		if err != nil {
			return err
		}
		start := []byte(prefix)
		if c.db.ReverseKey() {
			start = nil
		}
		if _, err := cur.SetRange(start); err != nil {
			return err
		}
		for k, v := range cur.Forward() {
			// Reverse-key order does not group prefixes.
			if !bytes.HasPrefix(k, []byte(prefix)) {
				if c.db.ReverseKey() {
					continue
				}
				break
			}
			fmt.Fprintf(c.out, "%s\t%s\n", printable(k), printable(v))
		}
		return cur.Err()
	})
}

// printable renders b as text when it is printable UTF-8 and as hex
// otherwise.
func printable(b []byte) string {
	if utf8.Valid(b) && strings.IndexFunc(string(b), func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}
