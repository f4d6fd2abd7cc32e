package defs

import "gitlab.com/ms-serving.net/internal/domain"

// Distributed worker -> agent messages
type (
	AgentRegisterRequest struct {
		WorkerAddress string                 `json:"worker_address"`
		AgentSpec     domain.WorkerAgentSpec `json:"agent_spec"`
		Servables     []domain.WorkerSpec    `json:"servables"`
	}

	AgentRegisterReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	AgentUnregisterRequest struct {
		WorkerAddress string `json:"worker_address"`
		Rank          uint32 `json:"rank"`
	}

	AgentUnregisterReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	DistributedExitRequest struct {
		Address string `json:"address"`
	}

	DistributedExitReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}
)
