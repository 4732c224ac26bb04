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

	"mathtutor-backend/internal/config"
	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/database"
	"mathtutor-backend/internal/handlers"
	"mathtutor-backend/internal/middleware"
	"mathtutor-backend/internal/repository"
	"mathtutor-backend/internal/router"
	"mathtutor-backend/internal/services"
	"mathtutor-backend/internal/websocket"
	"mathtutor-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting MathTutor Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 3: Initialize Gemini Solver ────
	solverService, err := services.NewSolverService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer solverService.Close()
	log.Println("✓ Gemini solver initialized")

	// ──── Initialize Services ────
	sessionAuth := middleware.NewSessionAuth(cfg.JWTSecret)
	historyRepo := repository.NewHistoryRepo(redisClients.Store)
	synthesizer := services.NewSynthesizer(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID)
	if synthesizer.Supported() {
		log.Println("✓ Speech synthesis enabled")
	} else {
		log.Println("  Speech synthesis disabled (no ELEVENLABS_API_KEY)")
	}

	// ──── Step 4: Start Solve Worker Pool ────
	solvePool := worker.NewPool(solverService, redisClients.Store, 5)
	solvePool.Start()
	log.Println("✓ Solve worker pool started (5 goroutines)")

	// ──── Step 5: Session Manager ────
	manager := conversation.NewManager(historyRepo, solvePool)
	defer manager.Stop()
	log.Println("✓ Session manager started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, sessionAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(manager, sessionAuth)
	conversationHandler := handlers.NewConversationHandler(manager)
	canvasHandler := handlers.NewCanvasHandler(manager)
	renderHandler := handlers.NewRenderHandler()
	speechHandler := handlers.NewSpeechHandler(synthesizer, solverService)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		sessionAuth,
		sessionHandler,
		conversationHandler,
		canvasHandler,
		renderHandler,
		speechHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		solvePool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ MathTutor Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
