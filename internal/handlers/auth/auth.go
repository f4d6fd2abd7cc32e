package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/ms-serving.net/internal/core/services/auth"
	"gitlab.com/ms-serving.net/internal/handlers/response"
)

type LoginResponse struct {
	Token string `json:"token"`
}

type Handler struct {
	authService auth.IAuthService
}

func NewHandler(authService auth.IAuthService) *Handler {
	return &Handler{authService: authService}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
}

// Login exchanges admin credentials for a bearer token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials auth.Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&credentials); err != nil {
		response.WriteError(w, response.ErrorMessage{Message: "invalid request body", StatusCode: http.StatusBadRequest})
		return
	}

	tokenStr, err := h.authService.Login(r.Context(), &credentials)
	if err != nil {
		code := http.StatusUnauthorized
		if errors.Is(err, auth.ErrLoginDisabled) {
			code = http.StatusNotFound
		} else if !errors.Is(err, auth.ErrInvalidCredentials) {
			code = http.StatusInternalServerError
		}
		response.WriteError(w, response.ErrorMessage{Message: err.Error(), StatusCode: code})
		return
	}

	response.WriteSuccess(w, LoginResponse{Token: tokenStr})
}
