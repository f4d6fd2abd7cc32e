package primary

import (
	"context"
	"net"
)

// MessageHandler handles the body of one request frame and returns the reply body.
// A non-nil error is reported to the peer as a transport-level MsgError.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error)
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	return f(ctx, conn, payload)
}
