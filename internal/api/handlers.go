package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/parlorlabs/parlor/internal/auth"
	"github.com/parlorlabs/parlor/internal/core"
	"github.com/parlorlabs/parlor/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

type APIHandler struct {
	sessions *core.SessionService
	rooms    *core.RoomService
	hub      *core.FeedHub
	assist   *core.AssistService
	users    core.UserStore
}

func NewAPIHandler(sessions *core.SessionService, rooms *core.RoomService, hub *core.FeedHub, assist *core.AssistService, users core.UserStore) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		rooms:    rooms,
		hub:      hub,
		assist:   assist,
		users:    users,
	}
}

// SessionAuthMiddleware validates the bearer and checks its embedded opaque
// token against the token currently stored on the user document. A login on
// another device regenerates that token, so the older bearer fails here with
// 401 on its next request.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.users.GetUser(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			log.Printf("Error in SessionAuthMiddleware for user %s: %v", claims.Subject, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user.Token == "" || user.Token != claims.SessionToken {
			http.Error(w, "Session is no longer valid", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUser(r *http.Request) *store.User {
	return r.Context().Value(userContextKey).(*store.User)
}

// respondError maps the error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is logged and surfaced as a generic failure.
func respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, core.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, core.ErrWrongCredential):
		// 403, not 401: the session is fine, the resource credential is not.
		http.Error(w, "Invalid credentials", http.StatusForbidden)
	case errors.Is(err, store.ErrAlreadyExists):
		http.Error(w, "Already exists", http.StatusConflict)
	case errors.Is(err, core.ErrSendInFlight):
		http.Error(w, "A send is already in flight", http.StatusTooManyRequests)
	case errors.Is(err, core.ErrAssist):
		http.Error(w, "The assistant is unavailable right now. Please try again.", http.StatusBadGateway)
	default:
		log.Printf("Error in %s: %v", op, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.sessions.Register(r.Context(), req.UserID, req.Password, req.Name)
	if err != nil {
		respondError(w, err, "RegisterHandler")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string      `json:"token"`
	UserID  string      `json:"user_id"`
	Profile *store.User `json:"profile"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, sessionToken, err := h.sessions.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		// A missing user and a wrong password both read as bad credentials
		// from the outside.
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, core.ErrWrongCredential) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		respondError(w, err, "LoginHandler")
		return
	}

	bearer, err := auth.GenerateJWT(user.ID, sessionToken)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(LoginResponse{Token: bearer, UserID: user.ID, Profile: user})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	if err := h.sessions.Logout(r.Context(), user.ID); err != nil {
		respondError(w, err, "LogoutHandler")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var patch core.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.sessions.UpdateProfile(r.Context(), user.ID, patch)
	if err != nil {
		respondError(w, err, "UpdateProfileHandler")
		return
	}
	json.NewEncoder(w).Encode(updated)
}

type RoomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

func (h *APIHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	room, err := h.rooms.Create(r.Context(), req.RoomID, req.Password)
	if err != nil {
		respondError(w, err, "CreateRoomHandler")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(room)
}

type ValidateRoomRequest struct {
	Password string `json:"password"`
}

func (h *APIHandler) ValidateRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req ValidateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.rooms.Validate(r.Context(), roomID, req.Password); err != nil {
		respondError(w, err, "ValidateRoomHandler")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateRoomAccess checks the room password carried in the query string.
// Room endpoints re-validate on every request; nothing is cached between screens.
func (h *APIHandler) validateRoomAccess(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomID := chi.URLParam(r, "roomID")
	if err := h.rooms.Validate(r.Context(), roomID, r.URL.Query().Get("password")); err != nil {
		respondError(w, err, "validateRoomAccess")
		return "", false
	}
	return roomID, true
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.validateRoomAccess(w, r)
	if !ok {
		return
	}

	messages, err := h.hub.Snapshot(r.Context(), roomID)
	if err != nil {
		respondError(w, err, "ListMessagesHandler")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	json.NewEncoder(w).Encode(messages)
}

type PostMessageRequest struct {
	Body string `json:"body"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.validateRoomAccess(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user := requestUser(r)
	author := store.Author{UserID: user.ID, Token: user.Token, Name: user.Name, Picture: user.Picture}
	if err := h.hub.Append(r.Context(), roomID, author, req.Body); err != nil {
		respondError(w, err, "PostMessageHandler")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type SummarizeRequest struct {
	History []store.Message `json:"history"`
}

func (h *APIHandler) SummarizeHandler(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.assist.Summarize(r.Context(), req.History)
	if err != nil {
		respondError(w, err, "SummarizeHandler")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

type FixGrammarRequest struct {
	Draft string `json:"draft"`
}

func (h *APIHandler) FixGrammarHandler(w http.ResponseWriter, r *http.Request) {
	var req FixGrammarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.assist.FixGrammar(r.Context(), req.Draft)
	if err != nil {
		respondError(w, err, "FixGrammarHandler")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

type SuggestReplyRequest struct {
	History []store.Message `json:"history"`
	Draft   string          `json:"draft"`
}

func (h *APIHandler) SuggestReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req SuggestReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.assist.SuggestReply(r.Context(), req.History, req.Draft)
	if err != nil {
		respondError(w, err, "SuggestReplyHandler")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}
