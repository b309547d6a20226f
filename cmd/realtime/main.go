package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "editmarket/server/common/log"
	realtimeapp "editmarket/server/realtime/app"
)

func main() {
	cfg := realtimeapp.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := realtimeapp.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("initialize realtime server: %v", err)
	}

	go func() {
		commonlog.Infof("start realtime http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run realtime http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown realtime server gracefully: %v", err)
	}
}
