package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/alerting"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/evaluator"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/ingress"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/mqttclient"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/repository"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/telemetry"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/tracking"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/vitals"
)

// SensorService wires the whole server together: webhook ingress, optional
// MQTT ingress, the occupancy state machine, the alert session manager and
// the periodic vitals sweeps.
type SensorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	locationRepo *repository.LocationRepository
	clientRepo   *repository.ClientRepository
	sessionRepo  *repository.SessionRepository
	vitalRepo    *repository.SensorsVitalRepository

	store          *telemetry.Store
	sessionManager *alerting.SessionManager
	monitor        *vitals.Monitor
	pipeline       *ingress.Pipeline

	httpServer   *http.Server
	mqttClient   *mqttclient.Client
	mqttConsumer *ingress.MQTTConsumer
}

// NewSensorService connects the backing stores and builds every component
func NewSensorService(cfg *config.Config, logger *zap.Logger) (*SensorService, error) {
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	locationRepo := repository.NewLocationRepository(db, logger)
	clientRepo := repository.NewClientRepository(db, logger)
	sessionRepo := repository.NewSessionRepository(db, logger)
	vitalRepo := repository.NewSensorsVitalRepository(db, logger)

	store := telemetry.NewStore(redisClient, logger)
	tracker := tracking.NewZapTracker(logger)

	gateway := alerting.NewGatewayAlerter(&cfg.Alerter, logger)
	sessionManager := alerting.NewSessionManager(cfg, sessionRepo, gateway, logger)

	thresholds := evaluator.NewThresholdEvaluator(store, cfg.Sensor.RadarWindowSize, logger)
	machine := evaluator.NewStateMachine(store, thresholds, sessionManager, logger)

	monitor := vitals.NewMonitor(cfg, locationRepo, clientRepo, sessionRepo, vitalRepo, store, gateway, tracker, logger)

	pipeline := ingress.NewPipeline(locationRepo, store, machine, sessionManager, monitor, vitalRepo, logger)

	handler := ingress.NewHTTPHandler(pipeline, cfg.WebhookAPIKey, logger)
	mux := http.NewServeMux()
	handler.Register(mux)

	s := &SensorService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		logger:         logger,
		locationRepo:   locationRepo,
		clientRepo:     clientRepo,
		sessionRepo:    sessionRepo,
		vitalRepo:      vitalRepo,
		store:          store,
		sessionManager: sessionManager,
		monitor:        monitor,
		pipeline:       pipeline,
		httpServer: &http.Server{
			Addr:         cfg.HTTP.ListenAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqttclient.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT client: %w", err)
		}
		s.mqttClient = mqttClient
		s.mqttConsumer = ingress.NewMQTTConsumer(mqttClient, pipeline, cfg.MQTT.RadarTopic, logger)
	}

	return s, nil
}

// Start runs the HTTP server, the MQTT consumer when enabled, and the vitals
// sweep tickers. It blocks until the context is cancelled or the HTTP server
// fails.
func (s *SensorService) Start(ctx context.Context) error {
	s.logger.Info("Starting sensor service",
		zap.String("listen_addr", s.config.HTTP.ListenAddr),
		zap.Bool("mqtt_enabled", s.config.MQTT.Enabled),
	)

	if s.mqttConsumer != nil {
		go func() {
			if err := s.mqttConsumer.Start(ctx); err != nil {
				s.logger.Error("MQTT consumer failed", zap.Error(err))
			}
		}()
	}

	go s.runHeartbeatSweep(ctx)
	go s.runInternalProblemsSweep(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	}
}

func (s *SensorService) runHeartbeatSweep(ctx context.Context) {
	ticker := time.NewTicker(s.config.Vitals.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.monitor.CheckHeartbeat(ctx)
		}
	}
}

func (s *SensorService) runInternalProblemsSweep(ctx context.Context) {
	ticker := time.NewTicker(s.config.Vitals.InternalProblemsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.monitor.CheckForInternalProblems(ctx)
		}
	}
}

// Stop shuts everything down in dependency order.
func (s *SensorService) Stop() error {
	s.logger.Info("Stopping sensor service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
