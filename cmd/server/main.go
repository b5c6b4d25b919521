package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlorlabs/parlor/internal/api"
	"github.com/parlorlabs/parlor/internal/config"
	"github.com/parlorlabs/parlor/internal/core"
	"github.com/parlorlabs/parlor/internal/store"
)

func main() {
	config.Load()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.Cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	dbStore, err := store.NewSQLiteStore(config.Cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llmClient, err := core.NewLLMClient(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer llmClient.Close()

	sessionService := core.NewSessionService(dbStore, config.Cfg.MaxPictureSize)
	roomService := core.NewRoomService(dbStore)
	feedHub := core.NewFeedHub(dbStore)
	assistService := core.NewAssistService(llmClient, config.Cfg.SummaryWindow, config.Cfg.SuggestWindow)

	apiHandler := api.NewAPIHandler(sessionService, roomService, feedHub, assistService, dbStore)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.Cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // assist calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
