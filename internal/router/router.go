package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mathtutor-backend/internal/handlers"
	"mathtutor-backend/internal/middleware"
	"mathtutor-backend/internal/websocket"
)

func New(
	sessionAuth *middleware.SessionAuth,
	sessionHandler *handlers.SessionHandler,
	conversationHandler *handlers.ConversationHandler,
	canvasHandler *handlers.CanvasHandler,
	renderHandler *handlers.RenderHandler,
	speechHandler *handlers.SpeechHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Per-IP limiters: session creation and solve submission
	sessionLimiter := middleware.NewRateLimiter(10, time.Minute)
	submitLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session (public) ────
		r.With(sessionLimiter.Middleware).Post("/session", sessionHandler.Create)

		// ──── Markup rendering (public, stateless) ────
		r.Post("/render", renderHandler.Render)

		// ──── WebSocket (token via query param) ────
		r.Get("/ws", wsHub.HandleWebSocket)

		// ──── Session-scoped routes ────
		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.Middleware)

			r.Route("/conversation", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.With(submitLimiter.Middleware).Post("/submit", conversationHandler.Submit)
				r.Put("/level", conversationHandler.SetLevel)
				r.Post("/clear", conversationHandler.Clear)
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", conversationHandler.History)
				r.Delete("/", conversationHandler.ClearHistory)
			})

			r.Route("/canvas", func(r chi.Router) {
				r.Post("/stroke", canvasHandler.Stroke)
				r.Post("/clear", canvasHandler.Clear)
				r.Get("/capture", canvasHandler.Capture)
			})

			r.Route("/speech", func(r chi.Router) {
				r.Post("/synthesize", speechHandler.Synthesize)
				r.Post("/recognize", speechHandler.Recognize)
			})
		})
	})

	return r
}
