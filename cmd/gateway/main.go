package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incidentscope/config"
	"incidentscope/core/utils"
	"incidentscope/gateway"
)

func main() {
	logger := utils.NewLogger()

	cfg, err := config.Load(config.ConfigPathFromEnv())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	server := gateway.NewServer(cfg, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gateway server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
