package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Patch("/profile", apiHandler.UpdateProfileHandler)

			// Room routes
			r.Post("/rooms", apiHandler.CreateRoomHandler)
			r.Post("/rooms/{roomID}/validate", apiHandler.ValidateRoomHandler)
			r.Get("/rooms/{roomID}/messages", apiHandler.ListMessagesHandler)
			r.Post("/rooms/{roomID}/messages", apiHandler.PostMessageHandler)
			r.Get("/rooms/{roomID}/ws", apiHandler.RoomFeedHandler)

			// AI assist routes
			r.Post("/assist/summarize", apiHandler.SummarizeHandler)
			r.Post("/assist/fix-grammar", apiHandler.FixGrammarHandler)
			r.Post("/assist/suggest-reply", apiHandler.SuggestReplyHandler)
		})
	})

	return r
}
