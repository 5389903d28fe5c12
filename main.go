package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kkismd/gridworker/pkg/auth"
	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/session"
	"github.com/kkismd/gridworker/pkg/terminal"
)

func main() {
	// Configuration comes up before everything else.
	configPath := "settings.cfg"
	if err := configuration.Initialize(configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		return
	}

	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		return
	}
	defer logger.Close()
	logger.Info(logger.AreaConfig, "server starting, configuration loaded from %s", configPath)

	// Persistence layer.
	dbPath := configuration.GetString("Database", "file", "gridworker.db")
	store, err := session.OpenStore(dbPath)
	if err != nil {
		logger.Fatal(logger.AreaDatabase, "database initialization failed: %v", err)
	}
	defer store.Close()

	// Board, workers and scheduler.
	manager := session.NewManager(store)
	manager.Start()
	defer manager.Shutdown()

	// HTTP surface.
	authHandler := auth.NewHandler(store)
	wsHandler := terminal.NewHandler(manager)

	http.HandleFunc("/api/auth/register", authHandler.HandleRegister)
	http.HandleFunc("/api/auth/login", authHandler.HandleLogin)
	http.HandleFunc("/api/auth/guest", authHandler.HandleGuest)
	http.HandleFunc("/api/auth/session", auth.RequireToken(authHandler.HandleSession))
	http.HandleFunc("/ws", wsHandler.HandleWebSocket)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat("index.html"); err == nil {
			http.ServeFile(w, r, "index.html")
			return
		}
		http.Error(w, "index.html not found", http.StatusNotFound)
	})

	addr := configuration.GetString("Network", "bind_address", "0.0.0.0") + ":" +
		configuration.GetString("Network", "port", "8080")
	server := &http.Server{Addr: addr}

	go func() {
		logger.Info(logger.AreaGeneral, "HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(logger.AreaGeneral, "HTTP server failed: %v", err)
		}
	}()

	// Block until asked to stop, then drain connections.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info(logger.AreaGeneral, "shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn(logger.AreaGeneral, "HTTP shutdown incomplete: %v", err)
	}
}
