package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parlorlabs/parlor/internal/core"
	"github.com/parlorlabs/parlor/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FeedEvent is what the server pushes down the room socket. A snapshot
// replaces the client's whole message list; an error answers a failed send.
type FeedEvent struct {
	Type     string          `json:"type"` // "snapshot" or "error"
	Messages []store.Message `json:"messages,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SendFrame is what the client writes up the socket to post a message.
type SendFrame struct {
	Body string `json:"body"`
}

// RoomFeedHandler bridges one live feed registration onto a websocket.
// Inbound frames are sends (single-flight, rejected while one is
// outstanding); outbound frames are full-history snapshots. The registration
// is torn down when the socket goes away, whichever side closes first.
func (h *APIHandler) RoomFeedHandler(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.validateRoomAccess(w, r)
	if !ok {
		return
	}
	user := requestUser(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed for room %s: %v", roomID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := h.hub.Open(ctx, roomID)
	if err != nil {
		log.Printf("Failed to open feed for room %s: %v", roomID, err)
		conn.WriteJSON(FeedEvent{Type: "error", Error: "Failed to connect to room."})
		return
	}
	defer feed.Close()

	author := store.Author{UserID: user.ID, Token: user.Token, Name: user.Name, Picture: user.Picture}
	sendErrs := make(chan string, 4)

	// Read side: each frame is a send attempt. Errors go back through the
	// writer goroutine; gorilla allows only one concurrent writer.
	go func() {
		defer cancel()
		for {
			var frame SendFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if err := feed.Send(ctx, author, frame.Body); err != nil {
				select {
				case sendErrs <- sendErrorMessage(err):
				default:
				}
			}
		}
	}()

	for {
		select {
		case snapshot, open := <-feed.Updates():
			if !open {
				return
			}
			if snapshot == nil {
				snapshot = []store.Message{}
			}
			if err := conn.WriteJSON(FeedEvent{Type: "snapshot", Messages: snapshot}); err != nil {
				return
			}
		case msg := <-sendErrs:
			if err := conn.WriteJSON(FeedEvent{Type: "error", Error: msg}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return "Message text is empty."
	case errors.Is(err, core.ErrSendInFlight):
		return "Still sending your previous message."
	default:
		log.Printf("Send failed: %v", err)
		return "Failed to send message."
	}
}
