package logging

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id from its own stack
// trace header ("goroutine 123 [running]:"). Go exposes no public,
// addressable thread/goroutine identity, so threadTag is scoped to
// this id rather than to an OS thread. This is the one place the log
// sink reaches into runtime internals; no library in the pack offers
// goroutine-local storage.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]

	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
