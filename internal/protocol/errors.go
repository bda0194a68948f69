package protocol

import "errors"

var (
	ErrInvalidSyncPattern  = errors.New("protocol: invalid sync pattern")
	ErrNegativeDiscard     = errors.New("protocol: discard_leading_bytes must not be negative")
	ErrUnknownProtocol     = errors.New("protocol: unknown protocol")
	ErrInvalidArgument     = errors.New("protocol: invalid argument")
	ErrTooManyArguments    = errors.New("protocol: too many arguments")
	ErrDuplicateRegistered = errors.New("protocol: already registered")
)
