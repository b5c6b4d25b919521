package core

import (
	"context"
	"fmt"

	"github.com/parlorlabs/parlor/internal/store"
)

// RoomStore is the slice of the document store the room service needs.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*store.Room, error)
	CreateRoom(ctx context.Context, r *store.Room) error
}

type RoomService struct {
	rooms RoomStore
}

func NewRoomService(rooms RoomStore) *RoomService {
	return &RoomService{rooms: rooms}
}

// Validate performs a single point read of the room and compares the password
// by exact match. Plaintext comparison is the stored contract, not a
// cryptographic scheme.
func (s *RoomService) Validate(ctx context.Context, roomID, password string) error {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Password != password {
		return ErrWrongCredential
	}
	return nil
}

func (s *RoomService) Create(ctx context.Context, roomID, password string) (*store.Room, error) {
	if roomID == "" || password == "" {
		return nil, fmt.Errorf("%w: room id and password are required", ErrValidation)
	}

	room := &store.Room{ID: roomID, Name: roomID, Password: password}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}
