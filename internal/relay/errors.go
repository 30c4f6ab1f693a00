package relay

import "fmt"

// SocketError is an I/O failure on a slot's socket. The slot keeps running.
type SocketError struct {
	Op   string
	Slot int
	Err  error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("socket %s failed on slot %d: %v", e.Op, e.Slot, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}
