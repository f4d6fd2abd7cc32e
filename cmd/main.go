package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gitlab.com/ms-serving.net/internal/adapter/crypto"
	"gitlab.com/ms-serving.net/internal/adapter/memory"
	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/adapter/postgres/eventrepository"
	"gitlab.com/ms-serving.net/internal/adapter/redis/workerport"
	"gitlab.com/ms-serving.net/internal/config"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/core/services/auth"
	"gitlab.com/ms-serving.net/internal/core/services/dispatch"
	"gitlab.com/ms-serving.net/internal/core/services/distributed"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	logger2 "gitlab.com/ms-serving.net/internal/global/logger"
	http2 "gitlab.com/ms-serving.net/internal/http"
	"gitlab.com/ms-serving.net/internal/schedulerengine"
	"gitlab.com/ms-serving.net/internal/tcp"
	"gitlab.com/ms-serving.net/internal/tcp/handlers"
)

const eventJournalLimit = 1000

func main() {
	InitReader()
	sysCfg := config.NewSystemConfig()
	logger := logger2.Init(sysCfg.LogConfig)

	if len(os.Args) > 2 {
		runCommand(sysCfg.JwtConfig, os.Args[2:])
		return
	}

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	logger2.Info("Starting serving master")

	masterCfg := sysCfg.MasterConfig

	// SECONDARY PORTS
	workerPort, eventPort, closeStores, err := setupStores(sysCfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up persistence: %v", err)
	}
	defer closeStores()

	//services
	inventory := worker.NewWorkerInventoryService(workerPort, eventPort, logger)
	dispatcher := dispatch.NewDispatcher(logger, dispatch.WithExitTimeout(masterCfg.RPCDeadline))
	coordinator := distributed.NewCoordinator(notify.AgentFactory(masterCfg.RPCDeadline, logger), masterCfg.RPCDeadline, logger)
	masterSvc := master.NewService(
		dispatcher,
		coordinator,
		inventory,
		notify.RemoteFactory(logger, notify.WithExitTimeout(masterCfg.RPCDeadline)),
		logger,
		master.WithHeartbeatTimeout(masterCfg.HeartbeatTimeout),
	)

	//primary ports
	jwtProvider := crypto.NewJWTService(sysCfg.JwtConfig)
	localAuth := auth.NewLocalAuthService(sysCfg.JwtConfig, jwtProvider, logger)

	//server
	tcpServer := tcp.NewServer(logger, tcp.WithAddress(masterCfg.TCPAddress))
	handlers.Setup(tcpServer, masterSvc, logger)
	if err := tcpServer.Start(); err != nil {
		log.Fatalf("Failed to start tcp server: %v", err)
	}

	serviceProvider := http2.NewServiceProvider(masterSvc, inventory, localAuth, jwtProvider, sysCfg.JwtConfig.Method)
	httpServer := http2.NewServer(masterCfg.HTTPPort, "serving-master", *serviceProvider, logger)
	if err := httpServer.Init(); err != nil {
		log.Fatalf("Failed to init http server: %v", err)
	}
	ctxBg, cancelBg := context.WithCancel(context.Background())
	if err := httpServer.Start(ctxBg); err != nil {
		log.Fatalf("Failed to start http server: %v", err)
	}

	pinger := notify.NewPinger(tcpServer.Addr(), logger)
	defer pinger.Close()
	engine := schedulerengine.NewSchedulerEngine(masterCfg, masterSvc, masterSvc.Watcher(), pinger, logger)
	engine.StartHeartbeatEngine(ctxBg)

	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cancelBg()
	engine.Wait()
	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("Http server forced to shutdown", "error", err)
	}
	masterSvc.Clear(ctx)
	if err := tcpServer.Stop(ctx); err != nil {
		logger.Error("Tcp server forced to shutdown", "error", err)
	}

	logger.Info("successfully shutdown server")
}

// setupStores picks redis and postgres when persistence is enabled, process
// memory otherwise
func setupStores(sysCfg *config.AppConfig, logger primary.Logger) (secondary.WorkerRepository, secondary.WorkerEventRepository, func(), error) {
	if !sysCfg.MasterConfig.EnablePersistence {
		return memory.NewWorkerRepository(), memory.NewEventRepository(eventJournalLimit), func() {}, nil
	}

	db, err := setupDatabase(sysCfg.PostgresConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	events := eventrepository.NewEventRepository(db, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := events.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	redisClient := setupRedis(sysCfg.RedisConfig)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	workers := workerport.NewWorkerRepository(redisClient, 3*sysCfg.MasterConfig.HeartbeatTimeout, logger)

	closeAll := func() {
		_ = redisClient.Close()
		_ = db.Close()
	}
	return workers, events, closeAll, nil
}

// setupDatabase sets up the PostgreSQL connection
func setupDatabase(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Url)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// setupRedis sets up the Redis connection
func setupRedis(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Url,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// runCommand handles the offline helpers:
//
//	token           print an admin bearer token
//	hash <password> print a bcrypt hash for ADMIN_PASSWORD_HASH
func runCommand(cfg *config.JwtConfig, args []string) {
	jwtProvider := crypto.NewJWTService(cfg)
	ctx := context.Background()

	switch args[0] {
	case "token":
		if cfg.Secret == "" {
			log.Fatalf("JWT_SECRET is not set")
		}
		token, err := jwtProvider.GenerateTokenHMAC(ctx, cfg.Method, map[string]interface{}{"sub": cfg.AdminUser})
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
	case "hash":
		if len(args) < 2 {
			log.Fatalf("usage: hash <password>")
		}
		hash, err := jwtProvider.EncryptPassword(ctx, args[1])
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
	default:
		log.Fatalf("unknown command %q", args[0])
	}
}

func InitReader() {
	environment := ""
	if len(os.Args) < 2 {
		log.Fatalf("Env not supplied in argument")
	} else {
		environment = os.Args[1]
	}

	err := godotenv.Load(environment + ".env")
	if err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
