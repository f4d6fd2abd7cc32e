package workers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/handlers"
	"gitlab.com/ms-serving.net/internal/handlers/response"
)

const defaultEventLimit = 50

// ApiHandler serves the admin API
type ApiHandler struct {
	Master        master.IMasterService
	WorkerService worker.IWorkerInventoryService
	Logger        primary.Logger
}

func NewHandler(master master.IMasterService, workerService worker.IWorkerInventoryService, logger primary.Logger) *ApiHandler {
	return &ApiHandler{
		Master:        master,
		WorkerService: workerService,
		Logger:        logger,
	}
}

// Register mounts the admin routes on r, expected to be the /api subrouter
func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/servables", api.GetServables).Methods(http.MethodGet)
	r.HandleFunc("/servables", api.ClearServables).Methods(http.MethodDelete)
	r.HandleFunc("/workers", api.GetWorkers).Methods(http.MethodGet)
	r.HandleFunc("/workers/{address}/events", api.GetWorkerEvents).Methods(http.MethodGet)
}

func (api *ApiHandler) GetServables(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, map[string]map[string][]domain.WorkerSpec{"servables": api.Master.Servables()})
}

func (api *ApiHandler) ClearServables(w http.ResponseWriter, r *http.Request) {
	api.Logger.Warn("Clearing servable registry", "remote", r.RemoteAddr)
	api.Master.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (api *ApiHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	servable := r.URL.Query().Get("servable")

	var workers []*domain.WorkerRecord
	var err error
	if servable != "" {
		workers, err = api.WorkerService.GetWorkersByServable(r.Context(), servable)
	} else {
		workers, err = api.WorkerService.GetAllWorkers(r.Context())
	}
	if err != nil {
		handlers.ResponseError(w, "Failed to get workers", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]*domain.WorkerRecord{"workers": workers})
}

func (api *ApiHandler) GetWorkerEvents(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handlers.ResponseError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := api.WorkerService.ListEvents(r.Context(), address, limit)
	if err != nil {
		handlers.ResponseError(w, "Failed to get worker events", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]*domain.WorkerEvent{"events": events})
}
