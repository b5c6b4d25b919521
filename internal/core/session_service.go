package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/parlorlabs/parlor/internal/auth"
	"github.com/parlorlabs/parlor/internal/store"
)

// Pictures arrive as base64 data URLs. The client caps the raw file at 750KB,
// which encodes to just over 1000KB plus the URL header, so the stored form
// gets 1MB.
const defaultMaxPictureBytes = 1024 * 1024

// UserStore is the slice of the document store the session service needs.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*store.User, error)
	CreateUser(ctx context.Context, u *store.User) error
	SetUserToken(ctx context.Context, userID, token string) error
	ClearUserToken(ctx context.Context, userID string) error
	UpdateUserProfile(ctx context.Context, userID string, name, picture *string) (*store.User, error)
}

type SessionService struct {
	users           UserStore
	maxPictureBytes int
}

func NewSessionService(users UserStore, maxPictureBytes int) *SessionService {
	if maxPictureBytes <= 0 {
		maxPictureBytes = defaultMaxPictureBytes
	}
	return &SessionService{users: users, maxPictureBytes: maxPictureBytes}
}

func (s *SessionService) Register(ctx context.Context, userID, password, name string) (*store.User, error) {
	if strings.TrimSpace(userID) == "" || password == "" {
		return nil, fmt.Errorf("%w: user id and password are required", ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		name = userID
	}

	u := &store.User{ID: userID, Password: password, Name: name}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, userID)
}

// Login checks the password against the stored user document verbatim and, on
// success, regenerates the opaque session token on that document. Whatever
// token a previous login wrote is overwritten, which silently invalidates the
// session still holding it.
func (s *SessionService) Login(ctx context.Context, userID, password string) (*store.User, string, error) {
	if userID == "" || password == "" {
		return nil, "", fmt.Errorf("%w: user id and password are required", ErrValidation)
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if u.Password != password {
		return nil, "", ErrWrongCredential
	}

	token := auth.NewSessionToken()
	if err := s.users.SetUserToken(ctx, userID, token); err != nil {
		return nil, "", fmt.Errorf("failed to store session token: %w", err)
	}
	u.Token = token
	return u, token, nil
}

// Logout clears the token stored on the user document. Callers treat a
// failure here as best-effort; local session destruction never depends on it.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	return s.users.ClearUserToken(ctx, userID)
}

// ProfilePatch carries the fields a profile update may change. Nil means
// leave untouched.
type ProfilePatch struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

func (s *SessionService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*store.User, error) {
	if patch.Name == nil && patch.Picture == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if patch.Picture != nil && len(*patch.Picture) > s.maxPictureBytes {
		return nil, fmt.Errorf("%w: picture too large (max %d bytes)", ErrValidation, s.maxPictureBytes)
	}

	return s.users.UpdateUserProfile(ctx, userID, patch.Name, patch.Picture)
}
