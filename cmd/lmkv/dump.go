package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"

	"github.com/Giulio2002/lmkv"
)

// A dump is dumpMagic followed by records of
// uvarint(len(key)) key uvarint(len(value)) value, in key order. The whole
// stream may be zstd-compressed.
var (
	dumpMagic = []byte("lmkv-dump\x01")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

const maxRecordSize = 1 << 30

var errBadDump = errors.New("not an lmkv dump")

func (c *commander) dump(path string) (int, error) {
	var buf bytes.Buffer
	var w io.Writer = &buf
	var enc *zstd.Encoder
	if c.zstd || strings.HasSuffix(path, ".zst") {
		var err error
		if enc, err = zstd.NewWriter(&buf); err != nil {
			return 0, err
		}
		w = enc
	}

	bw := bufio.NewWriter(w)
	bw.Write(dumpMagic)
	n := 0
	err := c.env.View(func(txn *lmkv.Txn) error {
		cur, err := txn.Cursor(c.db)
		if err != nil {
			return err
		}
		for k, v := range cur.Forward() {
			if err := writeRecord(bw, k, v); err != nil {
				return err
			}
			n++
		}
		return cur.Err()
	})
	if err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return 0, err
		}
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

func (c *commander) load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var r io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return 0, err
		}
		defer dec.Close()
		r = dec
	}

	br := bufio.NewReader(r)
	magic := make([]byte, len(dumpMagic))
	if _, err := io.ReadFull(br, magic); err != nil || !bytes.Equal(magic, dumpMagic) {
		return 0, fmt.Errorf("%w: %s", errBadDump, path)
	}

	n := 0
	opts := lmkv.PutOptions{AllowDuplicate: c.db.DupSort()}
	err = c.env.Update(func(txn *lmkv.Txn) error {
		for {
			k, v, err := readRecord(br)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("record %d: %w", n, err)
			}
			if _, err := txn.Put(c.db, k, v, opts); err != nil {
				return err
			}
			n++
		}
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeRecord(w *bufio.Writer, key, val []byte) error {
	var hdr [binary.MaxVarintLen64]byte
	for _, b := range [][]byte{key, val} {
		n := binary.PutUvarint(hdr[:], uint64(len(b)))
		if _, err := w.Write(hdr[:n]); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// readRecord returns io.EOF only at a record boundary.
func readRecord(r *bufio.Reader) (key, val []byte, err error) {
	if key, err = readField(r); err != nil {
		return nil, nil, err
	}
	if val, err = readField(r); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return key, val, nil
}

func readField(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: field of %d bytes", errBadDump, size)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}
