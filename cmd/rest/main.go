package main

import (
	"context"
	"log"

	"compliance-agent-be/internal/bootstrap"
	"compliance-agent-be/internal/config"
	"compliance-agent-be/internal/server"
	"compliance-agent-be/internal/tracer"
)

func main() {
	// 1. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 2. Load Configuration
	cfg := config.Load()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Logger.Sync()

	// 4. Initialize and Run Server
	srv := server.New(cfg, container)
	log.Fatal(srv.Run())
}
