package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/roostlabs/roost/internal/agent"
	"github.com/roostlabs/roost/internal/setup"
	"go.uber.org/zap"
)

// AgentLogDir specifies where agent log files are stored.
const AgentLogDir = "logs/agent_logs"

func main() {
	ctx := context.Background()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, setup.ServiceAgent, AgentLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	// Create agent instance
	presenceAgent, err := agent.New(app)
	if err != nil {
		app.Logger.Fatal("Failed to create agent", zap.Error(err))
	}

	// Start monitoring, subscriptions, and the local API
	if err := presenceAgent.Start(ctx); err != nil {
		app.Logger.Fatal("Failed to start agent", zap.Error(err))
	}

	log.Println("Agent has been started. Waiting for interrupt signal to gracefully shutdown...")

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	presenceAgent.Close()
}
