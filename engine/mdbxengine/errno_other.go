//go:build !unix

package mdbxengine

import "github.com/Giulio2002/lmkv/engine"

// libmdbx reports MDBX_ENODATA as ERROR_HANDLE_EOF on Windows.
const enodata = engine.Status(38)
