package errs

import "errors"

var (
	ErrNilRequest      = errors.New("request is nil")
	ErrClientClosed    = errors.New("rpc client closed")
	ErrUnknownMessage  = errors.New("unknown message type")
	ErrInvalidMagic    = errors.New("invalid magic number")
	ErrFrameTooLarge   = errors.New("frame exceeds maximum size")
	ErrServerStopped   = errors.New("server stopped")
	ErrNotRegistered   = errors.New("worker not registered with master")
	ErrAgentRankLayout = errors.New("agent ranks must be unique and contiguous from 0")
)
