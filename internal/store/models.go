package store

import "time"

type User struct {
	ID        string    `json:"id"`
	Password  string    `json:"-"` // stored verbatim, never serialized
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"` // inline data URL
	Token     string    `json:"-"`                 // opaque session token, empty when logged out
	CreatedAt time.Time `json:"created_at"`
}

type Room struct {
	ID        string    `json:"id"` // user-chosen, acts as primary key
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Author is who a message is attributed to. An anonymous author carries only a
// display name; an identified one also carries the user ID, session token and
// picture. Both render the same way in a feed.
type Author struct {
	UserID  string `json:"user_id,omitempty"`
	Token   string `json:"-"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

func (a Author) Identified() bool { return a.UserID != "" }

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"` // assigned by the store at write time
}
