package predict

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/handlers"
	"gitlab.com/ms-serving.net/internal/handlers/response"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// Handler exposes inference over REST. The request body is forwarded to the
// worker as is.
type Handler struct {
	master master.IMasterService
	logger primary.Logger
}

func NewHandler(master master.IMasterService, logger primary.Logger) *Handler {
	return &Handler{master: master, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/model/{name:[^/:]+}:{method:[^/:]+}", h.Predict).Methods(http.MethodPost)
	r.HandleFunc("/model/{name:[^/:]+}/version/{version:[0-9]+}:{method:[^/:]+}", h.Predict).Methods(http.MethodPost)
}

// Predict always answers 200 once the request reached the master; dispatch
// failures are reported in error_msg
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	spec := domain.RequestSpec{Name: vars["name"], MethodName: vars["method"]}
	if v, ok := vars["version"]; ok {
		version, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			response.WriteError(w, response.ErrorMessage{Message: "invalid version number", StatusCode: http.StatusBadRequest})
			return
		}
		spec.VersionNumber = version
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, defs.MaxRequestPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.WriteError(w, response.ErrorMessage{Message: "request body too large", StatusCode: http.StatusRequestEntityTooLarge})
			return
		}
		h.logger.Error("Failed to read predict body", "error", err)
		response.WriteError(w, response.ErrorMessage{Message: "invalid request body", StatusCode: http.StatusBadRequest})
		return
	}

	request := domain.NewPredictRequest(spec, payload)
	reply := &domain.PredictReply{}
	h.master.Predict(r.Context(), request, reply)

	handlers.ResponseWithJson(w, http.StatusOK, reply)
}
