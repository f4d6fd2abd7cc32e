package notify

import (
	"context"
	"sync"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// Pinger sends master-to-worker heartbeats, keeping one connection per
// worker address
type Pinger struct {
	source string
	logger primary.Logger

	mu       sync.Mutex
	channels map[string]*channel
}

// NewPinger creates a pinger that identifies itself as source
func NewPinger(source string, logger primary.Logger) *Pinger {
	return &Pinger{
		source:   source,
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

// Ping succeeds when the worker at address answered
func (p *Pinger) Ping(ctx context.Context, address string) error {
	p.mu.Lock()
	ch, ok := p.channels[address]
	if !ok {
		ch = newChannel(address, p.logger)
		p.channels[address] = ch
	}
	p.mu.Unlock()

	var reply defs.PingReply
	return ch.call(ctx, defs.MsgPing, defs.PingRequest{Address: p.source}, &reply)
}

// Forget closes the connection kept for address
func (p *Pinger) Forget(address string) {
	p.mu.Lock()
	ch, ok := p.channels[address]
	delete(p.channels, address)
	p.mu.Unlock()

	if ok {
		_ = ch.close()
	}
}

// Close closes every connection
func (p *Pinger) Close() {
	p.mu.Lock()
	channels := p.channels
	p.channels = make(map[string]*channel)
	p.mu.Unlock()

	for _, ch := range channels {
		_ = ch.close()
	}
}
