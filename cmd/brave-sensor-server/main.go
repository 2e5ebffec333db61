package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/logging"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "brave-sensor-server")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	sensorService, err := service.NewSensorService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create sensor service", zap.Error(err))
	}
	defer sensorService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceErrChan := make(chan error, 1)
	go func() {
		if err := sensorService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-serviceErrChan:
		logger.Fatal("Service error", zap.Error(err))
	}

	logger.Info("Sensor service stopped")
}
