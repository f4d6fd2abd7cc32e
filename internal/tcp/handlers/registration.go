package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// Implementation of message handlers
// Each handler deals with one specific message type. A body that cannot be
// decoded is a transport error; anything the master rejects travels back
// in-band in the reply's error_msg.

var (
	_ primary.MessageHandler = (*RegisterHandler)(nil)
	_ primary.MessageHandler = (*AddWorkerHandler)(nil)
	_ primary.MessageHandler = (*RemoveWorkerHandler)(nil)
	_ primary.MessageHandler = (*ExitHandler)(nil)
)

// RegisterHandler handles worker registration messages
type RegisterHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *RegisterHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.RegisterRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse worker registration", "error", err)
		return nil, err
	}

	h.Logger.Info("Worker registration received", "address", request.Address, "remote", conn.RemoteAddr().String())

	if len(request.Agents) > 0 {
		status := h.Master.RegisterDistributed(ctx, request.Address, request.WorkerSpecs, request.Agents)
		return defs.RegisterReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
	}
	status := h.Master.Register(ctx, request.Address, request.WorkerSpecs)
	return defs.RegisterReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
}

// AddWorkerHandler handles incremental worker additions
type AddWorkerHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *AddWorkerHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.AddWorkerRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse add worker request", "error", err)
		return nil, err
	}

	status := h.Master.AddWorker(ctx, request.Address, request.WorkerSpec)
	return defs.AddWorkerReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
}

// RemoveWorkerHandler handles worker removals
type RemoveWorkerHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *RemoveWorkerHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.RemoveWorkerRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse remove worker request", "error", err)
		return nil, err
	}

	status := h.Master.RemoveWorker(ctx, request.Address, request.WorkerSpec)
	return defs.RemoveWorkerReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
}

// ExitHandler handles graceful departures of workers and distributed workers
type ExitHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *ExitHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.ExitRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse exit request", "error", err)
		return nil, err
	}

	status := h.Master.Exit(ctx, request.Address)
	return defs.ExitReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
}

// DistributedExitHandler handles a distributed worker leaving
type DistributedExitHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *DistributedExitHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request defs.DistributedExitRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse distributed exit request", "error", err)
		return nil, err
	}

	status := h.Master.Exit(ctx, request.Address)
	return defs.DistributedExitReply{ErrorMsg: defs.ErrorMsgFromStatus(status)}, nil
}

// decode rejects empty bodies so a null request never reaches the master
func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
