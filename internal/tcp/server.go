package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp/connectionmanager"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// Server accepts framed request/reply traffic. Every request frame is
// served on its own goroutine so one slow handler never blocks the
// connection it arrived on.
type Server struct {
	address       string
	logger        primary.Logger
	listener      net.Listener
	connectionMgr *connectionmanager.ConnectionManager
	handlers      map[byte]primary.MessageHandler

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithAddress sets the server address
func WithAddress(address string) ServerOption {
	return func(s *Server) {
		s.address = address
	}
}

// NewServer creates a new TCP server
func NewServer(logger primary.Logger, options ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		address:       ":5500", // Default address
		logger:        logger,
		connectionMgr: connectionmanager.NewConnectionManager(logger),
		handlers:      make(map[byte]primary.MessageHandler),
		stopCh:        make(chan struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
	}

	for _, option := range options {
		option(server)
	}

	return server
}

// Handle registers the handler for a message type. Must be called before Start.
func (s *Server) Handle(msgType byte, handler primary.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = handler
}

// Start starts the TCP server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("tcp server already started on %s", s.address)
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener
	s.started = true

	s.logger.Info("TCP server listening", "address", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// ConnectionCount returns the number of open peer connections
func (s *Server) ConnectionCount() int {
	return s.connectionMgr.Count()
}

// Stop closes the listener and every connection, then waits for in-flight
// handlers until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				s.logger.Error("Failed to close listener", "error", err)
			}
		}

		s.connectionMgr.CloseAll()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acceptConnections accepts incoming connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("Failed to accept connection", "error", err)
				time.Sleep(defs.ConnectionRetryDelay) // Avoid tight loop on error
				continue
			}
		}

		s.connectionMgr.AddConnection(conn)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads frames until the peer goes away
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connectionMgr.RemoveConnection(conn)
		_ = conn.Close()
	}()

	for {
		msgType, payload, err := connectionmanager.ReadMessage(conn)
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					s.logger.Warn("Failed to read message", "remote", conn.RemoteAddr().String(), "error", err)
				}
			}
			return
		}

		var envelope defs.Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			connectionmanager.SendErrorMessage(conn, uuid.Nil, defs.ErrCodeInvalidEnvelope, "invalid envelope")
			continue
		}

		s.mu.Lock()
		handler, exists := s.handlers[msgType]
		s.mu.Unlock()
		if !exists {
			s.logger.Error("Unknown message type", "type", msgType)
			connectionmanager.SendErrorMessage(conn, envelope.ID, defs.ErrCodeUnknownMessage,
				fmt.Sprintf("%s: %d", errs.ErrUnknownMessage, msgType))
			continue
		}

		s.wg.Add(1)
		go s.serve(conn, msgType, envelope, handler)
	}
}

func (s *Server) serve(conn net.Conn, msgType byte, envelope defs.Envelope, handler primary.MessageHandler) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Handler panicked", "type", defs.MessageName(msgType), "panic", r)
			connectionmanager.SendErrorMessage(conn, envelope.ID, defs.ErrCodeHandlerPanic,
				fmt.Sprintf("handler %s panicked", defs.MessageName(msgType)))
		}
	}()

	reply, err := handler.HandleMessage(s.baseCtx, conn, envelope.Body)
	if err != nil {
		s.logger.Error("Error handling message", "type", defs.MessageName(msgType), "error", err)
		connectionmanager.SendErrorMessage(conn, envelope.ID, defs.ErrCodeInvalidRequest, err.Error())
		return
	}

	body, err := json.Marshal(reply)
	if err != nil {
		connectionmanager.SendErrorMessage(conn, envelope.ID, defs.ErrCodeEncodeReply, err.Error())
		return
	}

	frame, err := connectionmanager.EncodeEnvelope(defs.MsgReply, envelope.ID, body)
	if err != nil {
		connectionmanager.SendErrorMessage(conn, envelope.ID, defs.ErrCodeEncodeReply, err.Error())
		return
	}
	if err := connectionmanager.WriteFrame(conn, frame); err != nil {
		s.logger.Debug("Failed to send reply", "type", defs.MessageName(msgType), "error", err)
	}
}
