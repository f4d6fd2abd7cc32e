package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// channel dials address on first use and redials once the previous
// connection has dropped
type channel struct {
	address string
	logger  primary.Logger

	mu     sync.Mutex
	client *tcp.Client
	closed bool
}

func newChannel(address string, logger primary.Logger) *channel {
	return &channel{address: address, logger: logger}
}

func (c *channel) get(ctx context.Context) (*tcp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed(c.address)
	}
	if c.client != nil && !c.client.Closed() {
		return c.client, nil
	}

	client, err := tcp.Dial(ctx, c.address, c.logger)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *channel) call(ctx context.Context, msgType byte, args interface{}, reply interface{}) error {
	client, err := c.get(ctx)
	if err != nil {
		return err
	}
	return client.Call(ctx, msgType, args, reply)
}

func (c *channel) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// withDeadline bounds an administrative call; a tighter caller deadline wins
func withDeadline(ctx context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline <= 0 {
		deadline = defs.DefaultRPCDeadline
	}
	return context.WithTimeout(ctx, deadline)
}

func errClosed(address string) error {
	return fmt.Errorf("%w: %s", errs.ErrClientClosed, address)
}
