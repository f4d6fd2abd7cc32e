package handlers

import (
	"context"
	"net"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/tcp"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*PredictHandler)(nil)

// PredictHandler serves inference requests sent straight to the master
type PredictHandler struct {
	Master master.IMasterService
	Logger primary.Logger
}

func (h *PredictHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request domain.PredictRequest
	if err := decode(payload, &request); err != nil {
		h.Logger.Error("Failed to parse predict request", "error", err)
		return nil, err
	}

	reply := &domain.PredictReply{}
	h.Master.Predict(ctx, &request, reply)
	return reply, nil
}

// Setup registers every master handler on server
func Setup(server *tcp.Server, svc master.IMasterService, logger primary.Logger) {
	server.Handle(defs.MsgRegister, &RegisterHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgAddWorker, &AddWorkerHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgRemoveWorker, &RemoveWorkerHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgExit, &ExitHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgDistributedExit, &DistributedExitHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgPing, &PingHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgPong, &PongHandler{Master: svc, Logger: logger})
	server.Handle(defs.MsgPredict, &PredictHandler{Master: svc, Logger: logger})
}
