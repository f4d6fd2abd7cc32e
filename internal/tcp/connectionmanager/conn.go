package connectionmanager

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// ConnectionManager tracks the open connections of a server
type ConnectionManager struct {
	Connections map[string]net.Conn // remote address -> conn
	ConnMutex   sync.RWMutex
	Logger      primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		Connections: make(map[string]net.Conn),
		Logger:      logger,
	}
}

// AddConnection registers an accepted connection
func (cm *ConnectionManager) AddConnection(conn net.Conn) {
	cm.ConnMutex.Lock()
	cm.Connections[conn.RemoteAddr().String()] = conn
	cm.ConnMutex.Unlock()
}

// RemoveConnection forgets a connection when it is closed
func (cm *ConnectionManager) RemoveConnection(conn net.Conn) {
	cm.ConnMutex.Lock()
	delete(cm.Connections, conn.RemoteAddr().String())
	cm.ConnMutex.Unlock()
}

// GetConnection returns the connection for a remote address
func (cm *ConnectionManager) GetConnection(remote string) (net.Conn, bool) {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()

	conn, exists := cm.Connections[remote]
	return conn, exists
}

// Count returns the number of open connections
func (cm *ConnectionManager) Count() int {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()
	return len(cm.Connections)
}

// CloseAll closes every tracked connection
func (cm *ConnectionManager) CloseAll() {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()

	for remote, conn := range cm.Connections {
		if err := conn.Close(); err != nil {
			cm.Logger.Error("Failed to close connection", "remote", remote, "error", err)
		}
		delete(cm.Connections, remote)
	}
}

// SendErrorMessage answers request id with a transport error
func SendErrorMessage(conn net.Conn, id uuid.UUID, code int, message string) {
	errorBytes, err := json.Marshal(defs.ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		// Can't do much if marshaling fails
		return
	}

	// Ignore errors here as the connection might be closing
	_ = SendEnvelope(conn, defs.MsgError, id, errorBytes)
}

// SendEnvelope wraps body in an envelope carrying id and sends it
func SendEnvelope(conn net.Conn, msgType byte, id uuid.UUID, body []byte) error {
	frame, err := EncodeEnvelope(msgType, id, body)
	if err != nil {
		return err
	}
	return WriteFrame(conn, frame)
}

// EncodeEnvelope builds the frame for an envelope without touching the
// connection
func EncodeEnvelope(msgType byte, id uuid.UUID, body []byte) ([]byte, error) {
	payload, err := json.Marshal(defs.Envelope{ID: id, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return EncodeFrame(msgType, payload)
}

// EncodeFrame prefixes payload with the frame header
func EncodeFrame(msgType byte, payload []byte) ([]byte, error) {
	if len(payload) > defs.MaxPayloadSize {
		return nil, errs.ErrFrameTooLarge
	}

	frame := make([]byte, defs.HeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], defs.MagicNumber)
	frame[2] = msgType
	frame[3] = 0 // Reserved
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[defs.HeaderSize:], payload)
	return frame, nil
}

// WriteFrame writes an encoded frame in a single Write so frames from
// concurrent senders never interleave
func WriteFrame(conn net.Conn, frame []byte) error {
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage reads one frame from a connection
func ReadMessage(conn io.Reader) (byte, []byte, error) {
	header := make([]byte, defs.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, err
	}

	magic := binary.BigEndian.Uint16(header[0:2])
	msgType := header[2]
	payloadLen := binary.BigEndian.Uint32(header[4:8])

	if magic != defs.MagicNumber {
		return 0, nil, fmt.Errorf("%w: %x", errs.ErrInvalidMagic, magic)
	}
	if payloadLen > defs.MaxPayloadSize {
		return 0, nil, errs.ErrFrameTooLarge
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}

	return msgType, payload, nil
}
