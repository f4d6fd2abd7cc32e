package defs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Protocol constants
const (
	MagicNumber    uint16 = 0xCAFE
	HeaderSize            = 8
	MaxPayloadSize        = 64 << 20
	// MaxRequestPayload is the largest raw predict payload that still fits a
	// frame once base64 encoded inside the JSON envelope
	MaxRequestPayload = (MaxPayloadSize - envelopeOverhead) / 4 * 3
	envelopeOverhead  = 64 << 10

	// Master <- worker
	MsgRegister     byte = 0x01
	MsgAddWorker    byte = 0x02
	MsgRemoveWorker byte = 0x03
	MsgExit         byte = 0x04
	MsgPing         byte = 0x05
	MsgPong         byte = 0x06
	MsgPredict      byte = 0x07

	// Distributed worker <-> agent
	MsgAgentRegister   byte = 0x10
	MsgAgentUnregister byte = 0x11
	MsgDistributedExit byte = 0x12
	MsgAgentPredict    byte = 0x13

	MsgReply byte = 0x7E
	MsgError byte = 0x7F

	// Configuration constants
	ConnectionRetryDelay = 1 * time.Second
	DefaultRPCDeadline   = 1 * time.Second
)

var messageNames = map[byte]string{
	MsgRegister:        "Register",
	MsgAddWorker:       "AddWorker",
	MsgRemoveWorker:    "RemoveWorker",
	MsgExit:            "Exit",
	MsgPing:            "Ping",
	MsgPong:            "Pong",
	MsgPredict:         "Predict",
	MsgAgentRegister:   "AgentRegister",
	MsgAgentUnregister: "AgentUnregister",
	MsgDistributedExit: "DistributedExit",
	MsgAgentPredict:    "AgentPredict",
	MsgReply:           "Reply",
	MsgError:           "Error",
}

// MessageName returns a readable name for log lines
func MessageName(msgType byte) string {
	if name, ok := messageNames[msgType]; ok {
		return name
	}
	return "Unknown"
}

// Envelope is the payload of every frame; replies reuse the request ID
type Envelope struct {
	ID   uuid.UUID       `json:"id"`
	Body json.RawMessage `json:"body,omitempty"`
}

// ErrorData represents data sent with error responses
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Transport error codes
const (
	ErrCodeInvalidEnvelope = 1001
	ErrCodeUnknownMessage  = 1002
	ErrCodeInvalidRequest  = 1003
	ErrCodeHandlerPanic    = 1004
	ErrCodeEncodeReply     = 1005
)
