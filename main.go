package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"vps-gateway-service/config"
	"vps-gateway-service/handlers"
	"vps-gateway-service/repositories"
	"vps-gateway-service/routes"
	"vps-gateway-service/utils"
)

func main() {
	logger := utils.GetLogger("main")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	if err := utils.Configure(cfg.Logging.Level, cfg.Logging.File); err != nil {
		logger.Fatal("Failed to configure logging: %v", err)
	}

	// Set Gin mode
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create MongoDB-backed server inventory
	repo, err := repositories.NewMongoRepository(
		cfg.Database.URI,
		cfg.Database.Database,
		cfg.Database.Timeout,
	)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB: %v", err)
	}
	defer repo.Close()

	// Create managers and the gateway
	sshManager := handlers.NewSSHManager(cfg.SSH.ConnectTimeout)
	monitor := handlers.NewMonitorManager(cfg.Monitor.ProbeTimeout, repo)
	gateway := handlers.NewGateway(sshManager, monitor, repo, cfg.Monitor.DefaultInterval, cfg.Database.Timeout, cfg.SSH.DefaultPort)
	serverHandler := handlers.NewServerHandler(repo)

	// Create router
	router := gin.New()
	router.Use(gin.Recovery())

	// Setup routes
	routes.SetupRoutes(router, cfg, gateway, serverHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Run server in a goroutine
	go func() {
		logger.Info("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop monitors, disconnect SSH and close client sockets before
	// releasing the listening port
	gateway.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exiting")
}
