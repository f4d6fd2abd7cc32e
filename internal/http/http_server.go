package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/services/auth"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	"gitlab.com/ms-serving.net/internal/handlers"
	authHandler "gitlab.com/ms-serving.net/internal/handlers/auth"
	"gitlab.com/ms-serving.net/internal/handlers/predict"
	"gitlab.com/ms-serving.net/internal/handlers/workers"
)

type ServiceProvider struct {
	masterService master.IMasterService
	workerService worker.IWorkerInventoryService
	authService   auth.IAuthService
	jwtService    primary.JWTService
	jwtMethod     string
}

func NewServiceProvider(
	masterService master.IMasterService,
	workerService worker.IWorkerInventoryService,
	authService auth.IAuthService,
	jwtService primary.JWTService,
	jwtMethod string,
) *ServiceProvider {
	return &ServiceProvider{
		masterService: masterService,
		workerService: workerService,
		authService:   authService,
		jwtService:    jwtService,
		jwtMethod:     jwtMethod,
	}
}

type Server struct {
	router          *mux.Router
	Port            int
	ServiceName     string
	ServiceProvider ServiceProvider
	logger          primary.Logger
	srv             *http.Server
}

func NewServer(port int, serviceName string, serviceProvider ServiceProvider, logger primary.Logger) *Server {
	return &Server{
		Port:            port,
		ServiceName:     serviceName,
		ServiceProvider: serviceProvider,
		logger:          logger,
	}
}

func (s *Server) Init() error {
	r := mux.NewRouter()
	predict.NewHandler(s.ServiceProvider.masterService, s.logger).RegisterRoutes(r)
	authHandler.NewHandler(s.ServiceProvider.authService).RegisterRoutes(r)

	admin := r.PathPrefix("/api").Subrouter()
	admin.Use(handlers.New(s.ServiceProvider.jwtService, s.ServiceProvider.jwtMethod, s.logger).JWTMiddleware)
	workers.NewHandler(s.ServiceProvider.masterService, s.ServiceProvider.workerService, s.logger).Register(admin)

	s.router = r
	return nil
}

// Handler returns the router built by Init
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	// Set up server
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	// Start the server in a goroutine
	go func() {
		s.logger.Info("Server listening", "service", s.ServiceName, "addr", s.srv.Addr)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
