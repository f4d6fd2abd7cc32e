package domain

import (
	"github.com/google/uuid"
)

const defaultPredictError = "Predict failed"

// PredictRequest is an inference request. Payload is forwarded opaquely.
type PredictRequest struct {
	ID      uuid.UUID   `json:"request_id"`
	Spec    RequestSpec `json:"servable_spec"`
	Payload []byte      `json:"payload,omitempty"`
}

// NewPredictRequest assigns a fresh request ID
func NewPredictRequest(spec RequestSpec, payload []byte) *PredictRequest {
	return &PredictRequest{
		ID:      uuid.New(),
		Spec:    spec,
		Payload: payload,
	}
}

// ErrorMsg is one in-band failure carried by a reply
type ErrorMsg struct {
	Code    StatusCode `json:"error_code"`
	Message string     `json:"error_msg"`
}

// PredictReply carries the result of an inference request.
// ErrorMsg is populated iff the terminal status is not a success.
type PredictReply struct {
	ID       uuid.UUID   `json:"request_id"`
	Spec     RequestSpec `json:"servable_spec"`
	Payload  []byte      `json:"payload,omitempty"`
	ErrorMsg []ErrorMsg  `json:"error_msg,omitempty"`
}

// SetStatus records a terminal status on the reply
func (r *PredictReply) SetStatus(status Status) {
	if status.OK() {
		r.ErrorMsg = nil
		return
	}
	msg := status.Message
	if msg == "" {
		msg = defaultPredictError
	}
	r.ErrorMsg = []ErrorMsg{{Code: status.Code, Message: msg}}
}

// Status rebuilds the terminal status from the reply
func (r *PredictReply) Status() Status {
	if len(r.ErrorMsg) == 0 {
		return Success()
	}
	return Status{Code: r.ErrorMsg[0].Code, Message: r.ErrorMsg[0].Message}
}

// DispatchCallback receives the terminal status of a dispatch, exactly once
type DispatchCallback func(Status)
