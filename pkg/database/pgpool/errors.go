package pgpool

import "errors"

var (
	// ErrPoolExhausted is returned by Connect when no connection could be
	// borrowed within the connection timeout, whatever the underlying cause.
	ErrPoolExhausted = errors.New("pgpool: pool exhausted or connection failed")

	// ErrPoolClosed is returned by operations on a pool after Close.
	ErrPoolClosed = errors.New("pgpool: pool is closed")

	// ErrForeignConn is logged when Release receives a connection not borrowed from this pool.
	ErrForeignConn = errors.New("pgpool: connection was not borrowed from this pool")
)
