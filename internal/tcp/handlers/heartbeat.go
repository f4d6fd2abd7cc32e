package handlers

import (
	"context"
	"net"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

var (
	_ primary.MessageHandler = (*PingHandler)(nil)
	_ primary.MessageHandler = (*PongHandler)(nil)
)

// PingHandler handles worker heartbeat messages
type PingHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *PingHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.PingRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse worker heartbeat", "error", err)
		return nil, err
	}

	h.Master.Ping(ctx, request.Address)
	return defs.PingReply{}, nil
}

// PongHandler handles worker answers to master pings
type PongHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *PongHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.PongRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse worker pong", "error", err)
		return nil, err
	}

	h.Master.Pong(ctx, request.Address)
	return defs.PongReply{}, nil
}
