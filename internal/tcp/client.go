package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp/connectionmanager"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// RemoteError is a transport failure reported by the peer in a MsgError frame
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Call is one in-flight request
type Call struct {
	ID      uuid.UUID
	MsgType byte
	Reply   interface{}
	Error   error
	Done    chan *Call
}

func (c *Call) done() {
	select {
	case c.Done <- c:
	default:
		// Done is buffered by Go; a full channel is the caller's mistake
	}
}

// Client multiplexes requests over one connection, matching replies by
// envelope ID
type Client struct {
	address string
	conn    net.Conn
	logger  primary.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*Call
	closed  bool
	err     error
}

// Dial connects to a Server
func Dial(ctx context.Context, address string, logger primary.Logger) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	client := &Client{
		address: address,
		conn:    conn,
		logger:  logger,
		pending: make(map[uuid.UUID]*Call),
	}
	go client.readLoop()

	return client, nil
}

// Address returns the remote address
func (c *Client) Address() string {
	return c.address
}

// Go sends a request without waiting. The call is delivered on done, which
// must be buffered; a nil done allocates one.
func (c *Client) Go(msgType byte, args interface{}, reply interface{}, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	}
	call := &Call{
		ID:      uuid.New(),
		MsgType: msgType,
		Reply:   reply,
		Done:    done,
	}

	body, err := json.Marshal(args)
	if err != nil {
		call.Error = fmt.Errorf("failed to marshal %s request: %w", defs.MessageName(msgType), err)
		call.done()
		return call
	}
	// encoding failures belong to this call alone, the connection is intact
	frame, err := connectionmanager.EncodeEnvelope(msgType, call.ID, body)
	if err != nil {
		call.Error = fmt.Errorf("failed to encode %s request: %w", defs.MessageName(msgType), err)
		call.done()
		return call
	}

	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		call.Error = closedError(err)
		call.done()
		return call
	}
	c.pending[call.ID] = call
	c.mu.Unlock()

	if err := connectionmanager.WriteFrame(c.conn, frame); err != nil {
		if c.forget(call.ID) {
			call.Error = err
			call.done()
		}
		c.shutdown(err)
	}
	return call
}

// Call sends a request and waits for its reply or for ctx to expire
func (c *Client) Call(ctx context.Context, msgType byte, args interface{}, reply interface{}) error {
	call := c.Go(msgType, args, reply, make(chan *Call, 1))

	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		if c.forget(call.ID) {
			return ctx.Err()
		}
		// the reader already owns the call, its result is on the way
		<-call.Done
		return call.Error
	}
}

// Close closes the connection and fails every pending call
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.shutdown(errs.ErrClientClosed)
	return nil
}

// Closed reports whether the connection is gone
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) forget(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

func (c *Client) take(id uuid.UUID) *Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.pending[id]
	delete(c.pending, id)
	return call
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	pending := c.pending
	c.pending = make(map[uuid.UUID]*Call)
	c.mu.Unlock()

	_ = c.conn.Close()
	for _, call := range pending {
		call.Error = closedError(err)
		call.done()
	}
}

func (c *Client) readLoop() {
	for {
		msgType, payload, err := connectionmanager.ReadMessage(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}

		var envelope defs.Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			c.logger.Warn("Dropping malformed reply", "address", c.address, "error", err)
			continue
		}

		call := c.take(envelope.ID)
		if call == nil {
			// caller gave up on it
			continue
		}

		switch msgType {
		case defs.MsgReply:
			if call.Reply != nil && len(envelope.Body) > 0 {
				if err := json.Unmarshal(envelope.Body, call.Reply); err != nil {
					call.Error = fmt.Errorf("failed to decode %s reply: %w", defs.MessageName(call.MsgType), err)
				}
			}
		case defs.MsgError:
			var data defs.ErrorData
			if err := json.Unmarshal(envelope.Body, &data); err != nil {
				call.Error = fmt.Errorf("failed to decode error frame: %w", err)
			} else {
				call.Error = &RemoteError{Code: data.Code, Message: data.Message}
			}
		default:
			call.Error = fmt.Errorf("%w: %d", errs.ErrUnknownMessage, msgType)
		}
		call.done()
	}
}

func closedError(err error) error {
	if err == nil || err == errs.ErrClientClosed {
		return errs.ErrClientClosed
	}
	return fmt.Errorf("%w: %v", errs.ErrClientClosed, err)
}
