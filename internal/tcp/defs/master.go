package defs

import "gitlab.com/ms-serving.net/internal/domain"

// Worker -> master registration and heartbeat messages. Every reply carries
// failures in-band in ErrorMsg; the frame itself is always a MsgReply.
type (
	// RegisterRequest with Agents registers a distributed worker
	RegisterRequest struct {
		Address     string                   `json:"address"`
		WorkerSpecs []domain.WorkerSpec      `json:"worker_spec"`
		Agents      []domain.WorkerAgentSpec `json:"agents,omitempty"`
	}

	RegisterReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	AddWorkerRequest struct {
		Address    string            `json:"address"`
		WorkerSpec domain.WorkerSpec `json:"worker_spec"`
	}

	AddWorkerReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	RemoveWorkerRequest struct {
		Address    string            `json:"address"`
		WorkerSpec domain.WorkerSpec `json:"worker_spec"`
	}

	RemoveWorkerReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	ExitRequest struct {
		Address string `json:"address"`
	}

	ExitReply struct {
		ErrorMsg []domain.ErrorMsg `json:"error_msg,omitempty"`
	}

	PingRequest struct {
		Address string `json:"address"`
	}

	PingReply struct{}

	PongRequest struct {
		Address string `json:"address"`
	}

	PongReply struct{}
)

// ErrorMsgFromStatus renders a failed status for a reply, nil on success
func ErrorMsgFromStatus(status domain.Status) []domain.ErrorMsg {
	if status.OK() {
		return nil
	}
	return []domain.ErrorMsg{{Code: status.Code, Message: status.Message}}
}

// StatusFromErrorMsg rebuilds the status carried by a reply
func StatusFromErrorMsg(msgs []domain.ErrorMsg) domain.Status {
	if len(msgs) == 0 {
		return domain.Success()
	}
	return domain.Status{Code: msgs[0].Code, Message: msgs[0].Message}
}
