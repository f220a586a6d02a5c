package engine

import (
	"errors"
	"fmt"
	"syscall"
)

// Status is an MDBX-compatible result code. Negative values are engine
// codes, positive values are operating system errno values.
type Status int

// Engine result codes. The numbering follows libmdbx so that codes read from
// either engine compare equal.
const (
	Success Status = 0

	KeyExist        Status = -30799
	NotFound        Status = -30798
	PageNotFound    Status = -30797
	Corrupted       Status = -30796
	Panic           Status = -30795
	VersionMismatch Status = -30794
	Invalid         Status = -30793
	MapFull         Status = -30792
	DBsFull         Status = -30791
	ReadersFull     Status = -30790
	TxnFull         Status = -30788
	CursorFull      Status = -30787
	PageFull        Status = -30786
	UnableExtendMap Status = -30785
	Incompatible    Status = -30784
	BadRSlot        Status = -30783
	BadTxn          Status = -30782
	BadValSize      Status = -30781
	BadDBI          Status = -30780
	Problem         Status = -30779
	Busy            Status = -30778
	MultiVal        Status = -30421
	KeyMismatch     Status = -30418
	TooLarge        Status = -30417
	ThreadMismatch  Status = -30416
	TxnOverlapping  Status = -30415
	DanglingDBI     Status = -30412
)

// Errno values the handle layer inspects.
const (
	EINVAL = Status(syscall.EINVAL)
	EACCES = Status(syscall.EACCES)
	ENOENT = Status(syscall.ENOENT)
	EEXIST = Status(syscall.EEXIST)
	ENOMEM = Status(syscall.ENOMEM)
)

var statusMessages = map[Status]string{
	Success:         "success",
	KeyExist:        "key/data pair already exists",
	NotFound:        "key/data pair not found",
	PageNotFound:    "requested page not found",
	Corrupted:       "database is corrupted",
	Panic:           "fatal environment error",
	VersionMismatch: "database version mismatch",
	Invalid:         "file is not a valid database",
	MapFull:         "environment mapsize limit reached",
	DBsFull:         "environment maxdbs limit reached",
	ReadersFull:     "environment maxreaders limit reached",
	TxnFull:         "transaction has too many dirty pages",
	CursorFull:      "cursor stack overflow",
	PageFull:        "page has no space",
	UnableExtendMap: "unable to extend memory mapping",
	Incompatible:    "incompatible operation or flags",
	BadRSlot:        "reader slot corrupted",
	BadTxn:          "transaction is invalid",
	BadValSize:      "invalid key or value size",
	BadDBI:          "invalid DBI handle",
	Problem:         "unexpected internal error",
	Busy:            "another write transaction is running",
	MultiVal:        "key has multiple values",
	KeyMismatch:     "key mismatch with cursor position",
	TooLarge:        "database too large for system",
	ThreadMismatch:  "thread attempted to use unowned object",
	TxnOverlapping:  "overlapping transactions",
	DanglingDBI:     "dangling DBI handle",
}

func (s Status) Error() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	if s > 0 {
		return syscall.Errno(s).Error()
	}
	return fmt.Sprintf("unknown error code %d", int(s))
}

// StatusOf extracts the result code carried by err. Errors that carry no
// code report Problem; nil reports Success.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return Status(errno)
	}
	return Problem
}

// IsNotFound reports whether err carries NotFound.
func IsNotFound(err error) bool {
	return StatusOf(err) == NotFound
}

// IsKeyExist reports whether err carries KeyExist.
func IsKeyExist(err error) bool {
	return StatusOf(err) == KeyExist
}
