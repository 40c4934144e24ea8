package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/neemapp/chanda-gateway/internal/config"
	gateway "github.com/neemapp/chanda-gateway/internal/gateways"
	"github.com/neemapp/chanda-gateway/internal/handlers"
	"github.com/neemapp/chanda-gateway/internal/live"
	"github.com/neemapp/chanda-gateway/internal/queue"
	"github.com/neemapp/chanda-gateway/internal/repository"
	"github.com/neemapp/chanda-gateway/internal/services"
	xhttp "github.com/neemapp/chanda-gateway/pkg/http"
	"github.com/neemapp/chanda-gateway/pkg/logger"
	"github.com/neemapp/chanda-gateway/pkg/pg"
	"github.com/neemapp/chanda-gateway/pkg/prom"
	"github.com/neemapp/chanda-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	// the api itself only calls the pdf converter, but the full client keeps
	// endpoint health visible in one place
	gatewayClient, err := gateway.NewClient(&gateway.Config{
		SMSProviderURL:  config.Get().SMSProviderUrl,
		MailProviderURL: config.Get().MailProviderUrl,
		PdfConverterURL: config.Get().PdfConverterUrl,
		Timeout:         time.Second * 10,
		MaxRetries:      2,
		RetryDelay:      time.Millisecond * 100,
		MaxConns:        512,
	})
	if err != nil {
		logger.Error("failed creating gateway client", "error", err)
		return
	}

	hub := live.NewHub()

	donationRepo := repository.NewDonationRepository(db)

	// services
	donationService := services.NewDonationService(donationRepo, q, hub, config.Get().DefaultMandalName)

	// v1 handlers
	donationHandler := handlers.NewDonationHandler(donationService, gatewayClient)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": func(ctx context.Context) error {
			return db.Read(ctx).Exec("SELECT 1").Error
		},
		"redis": func(ctx context.Context) error {
			return redisAdap.Client().Ping(ctx).Err()
		},
	})

	g := s.Router.Group("/api/v1")
	handlers.RegisterDonationRoutes(g, donationHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)
	s.Router.GET("/api/v1/live", hub.Handle)

	hostname, _ := os.Hostname()
	if err := prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
		logger.Error("failed to init metrics", "error", err)
	}
	if config.Get().AppDebugMetricsAddr != "" {
		go func() {
			prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}()
	}

	logger.Info("starting api",
		"version", version,
		"commit", commit,
		"build_date", date,
		"addr", config.Get().HttpListenAddr,
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	hub.Close()
	gatewayClient.Close()
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
