//go:build unix

package mdbxengine

import (
	"golang.org/x/sys/unix"

	"github.com/Giulio2002/lmkv/engine"
)

// enodata is what libmdbx reports for GET_CURRENT on an exhausted cursor.
const enodata = engine.Status(unix.ENODATA)
