package core

import "errors"

var (
	ErrBackpressure = errors.New("signal: outbound buffer full")
	ErrSignalClosed = errors.New("signal: connection closed")
)

// Frame is an encoded outbound signaling message.
type Frame []byte

// SignalConnection abstracts the messaging transport of one client.
// Owned by the adapter; TrySend never blocks.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
