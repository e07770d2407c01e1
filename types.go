package prefixdb

import (
	"context"
	"errors"
)

type OpResult int

const (
	Error OpResult = iota
	Ok
	Dup
	Match
	NoMatch
)

func (r OpResult) String() string {
	switch r {
	case Error:
		return "error"
	case Ok:
		return "ok"
	case Dup:
		return "dup"
	case Match:
		return "match"
	case NoMatch:
		return "nomatch"
	}
	return "unknown"
}

// ErrorCode is the closed set of status codes returned by the database
// facade. Codes are distinct bits so that the results of a batch of calls
// can be OR-ed together to learn whether anything failed.
type ErrorCode uint8

const (
	OK            ErrorCode = 0
	InvalidFormat ErrorCode = 1
	IOError       ErrorCode = 2
	CorruptData   ErrorCode = 4
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidFormat:
		return "invalid format"
	case IOError:
		return "i/o error"
	case CorruptData:
		return "corrupt data"
	}
	return "mixed errors"
}

type ReadLockFn func(context.Context)
type ReadUnlockFn func(context.Context)
type WriteLockFn func(context.Context)
type UnlockFn func(context.Context)

// WalkerFn is called for every stored prefix during a walk. Returning an
// error stops the walk and hands the error back to the caller.
type WalkerFn[V any] func(context.Context, Key, V) error

// ConstError is an error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	ErrInvalidPrefixTree = ConstError("invalid prefix tree")
	ErrInvalidKey        = ConstError("invalid key")
	ErrInvalidFormat     = ConstError("invalid format")
	ErrIO                = ConstError("i/o failure")
	ErrCorruptData       = ConstError("corrupt data")
	ErrNoWalkerFunction  = ConstError("no walker function provided")
)

// CodeOf maps an error returned by this package to its ErrorCode. Errors
// that carry no known classification map to IOError, since they can only
// originate from the environment.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrInvalidFormat), errors.Is(err, ErrInvalidKey):
		return InvalidFormat
	case errors.Is(err, ErrCorruptData):
		return CorruptData
	}
	return IOError
}
