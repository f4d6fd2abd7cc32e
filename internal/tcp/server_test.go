package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

type echo struct {
	Text string `json:"text"`
}

func startServer(t *testing.T, register func(s *Server)) *Server {
	t.Helper()
	s := NewServer(logging.NewNopLogger(), WithAddress("127.0.0.1:0"))
	register(s)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func dial(t *testing.T, s *Server) *Client {
	t.Helper()
	c, err := Dial(context.Background(), s.Addr(), logging.NewNopLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func echoHandler() primary.MessageHandler {
	return primary.MessageHandlerFunc(func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
		var req echo
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return echo{Text: "re:" + req.Text}, nil
	})
}

func TestCallRoundTrip(t *testing.T) {
	s := startServer(t, func(s *Server) { s.Handle(defs.MsgPing, echoHandler()) })
	c := dial(t, s)

	var reply echo
	if err := c.Call(context.Background(), defs.MsgPing, echo{Text: "hi"}, &reply); err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply.Text != "re:hi" {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestConcurrentCallsAreMatchedByID(t *testing.T) {
	s := startServer(t, func(s *Server) { s.Handle(defs.MsgPing, echoHandler()) })
	c := dial(t, s)

	var wg sync.WaitGroup
	errCh := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := string(rune('a' + i%26))
			var reply echo
			if err := c.Call(context.Background(), defs.MsgPing, echo{Text: text}, &reply); err != nil {
				errCh <- err
				return
			}
			if reply.Text != "re:"+text {
				errCh <- errors.New("mismatched reply " + reply.Text)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestUnknownMessageIsRemoteError(t *testing.T) {
	s := startServer(t, func(s *Server) {})
	c := dial(t, s)

	err := c.Call(context.Background(), defs.MsgPredict, echo{}, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != defs.ErrCodeUnknownMessage {
		t.Fatalf("err = %v, want unknown message remote error", err)
	}
}

func TestHandlerPanicIsRemoteError(t *testing.T) {
	s := startServer(t, func(s *Server) {
		s.Handle(defs.MsgPing, primary.MessageHandlerFunc(func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
			panic("boom")
		}))
	})
	c := dial(t, s)

	err := c.Call(context.Background(), defs.MsgPing, echo{}, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != defs.ErrCodeHandlerPanic {
		t.Fatalf("err = %v, want handler panic remote error", err)
	}
}

func TestCallTimesOut(t *testing.T) {
	release := make(chan struct{})
	s := startServer(t, func(s *Server) {
		s.Handle(defs.MsgPing, primary.MessageHandlerFunc(func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
			<-release
			return echo{}, nil
		}))
	})
	defer close(release)
	c := dial(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, defs.MsgPing, echo{}, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	release := make(chan struct{})
	s := startServer(t, func(s *Server) {
		s.Handle(defs.MsgPing, primary.MessageHandlerFunc(func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
			<-release
			return echo{}, nil
		}))
	})
	defer close(release)
	c := dial(t, s)

	call := c.Go(defs.MsgPing, echo{}, nil, nil)
	_ = c.Close()

	select {
	case <-call.Done:
		if !errors.Is(call.Error, errs.ErrClientClosed) {
			t.Fatalf("err = %v, want client closed", call.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("pending call not failed on close")
	}
	if !c.Closed() {
		t.Fatal("client should report closed")
	}
	if err := c.Call(context.Background(), defs.MsgPing, echo{}, nil); !errors.Is(err, errs.ErrClientClosed) {
		t.Fatalf("call after close: %v", err)
	}
}

func TestOversizedCallLeavesConnectionOpen(t *testing.T) {
	release := make(chan struct{})
	s := startServer(t, func(s *Server) {
		s.Handle(defs.MsgPredict, primary.MessageHandlerFunc(func(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
			<-release
			return echo{Text: "slow"}, nil
		}))
	})
	c := dial(t, s)

	var slow echo
	inflight := c.Go(defs.MsgPredict, echo{}, &slow, nil)

	huge := c.Go(defs.MsgPredict, echo{Text: strings.Repeat("a", defs.MaxPayloadSize)}, nil, nil)
	select {
	case <-huge.Done:
		if !errors.Is(huge.Error, errs.ErrFrameTooLarge) {
			t.Fatalf("oversized call err = %v, want frame too large", huge.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("oversized call never completed")
	}
	if c.Closed() {
		t.Fatal("a local encoding failure must not close the connection")
	}

	close(release)
	select {
	case <-inflight.Done:
		if inflight.Error != nil || slow.Text != "slow" {
			t.Fatalf("in-flight call = %v %q", inflight.Error, slow.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call never completed")
	}
}
