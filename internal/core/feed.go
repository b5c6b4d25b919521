package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/parlorlabs/parlor/internal/store"
)

// MessageStore is the slice of the document store the feed hub needs.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *store.Message) error
	MessagesByRoom(ctx context.Context, roomID string) ([]store.Message, error)
}

// FeedHub fans room message updates out to live feeds. Every change delivers
// the full ordered history, not a delta, so a subscriber's view is always
// internally consistent no matter which update it last saw.
type FeedHub struct {
	messages MessageStore

	mu    sync.Mutex
	rooms map[string]map[*Feed]struct{}
}

func NewFeedHub(messages MessageStore) *FeedHub {
	return &FeedHub{
		messages: messages,
		rooms:    make(map[string]map[*Feed]struct{}),
	}
}

// Open registers a live feed on the room and primes it with the current
// history. The caller must Close the feed when done with the room.
func (h *FeedHub) Open(ctx context.Context, roomID string) (*Feed, error) {
	snapshot, err := h.messages.MessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room history: %w", err)
	}

	f := &Feed{
		hub:     h,
		roomID:  roomID,
		sending: semaphore.NewWeighted(1),
		updates: make(chan []store.Message, 1),
	}
	f.updates <- snapshot

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Feed]struct{})
	}
	h.rooms[roomID][f] = struct{}{}
	h.mu.Unlock()

	return f, nil
}

// Snapshot returns the room's full ordered history.
func (h *FeedHub) Snapshot(ctx context.Context, roomID string) ([]store.Message, error) {
	return h.messages.MessagesByRoom(ctx, roomID)
}

// Append validates and writes a message, then fans the new history out. The
// store assigns the timestamp; the sender sees its own message only once the
// subscription delivers it back.
func (h *FeedHub) Append(ctx context.Context, roomID string, author store.Author, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: message text is empty", ErrValidation)
	}

	msg := &store.Message{RoomID: roomID, Author: author, Body: body}
	if err := h.messages.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	h.broadcast(ctx, roomID)
	return nil
}

// broadcast re-reads the room and pushes the snapshot to every open feed.
// Pushes never block: a subscriber that lags sees only the latest snapshot,
// which is the whole history anyway.
func (h *FeedHub) broadcast(ctx context.Context, roomID string) {
	snapshot, err := h.messages.MessagesByRoom(ctx, roomID)
	if err != nil {
		log.Printf("Failed to load snapshot for room %s: %v", roomID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for f := range h.rooms[roomID] {
		select {
		case f.updates <- snapshot:
		default:
			// replace the stale pending snapshot with the fresh one
			select {
			case <-f.updates:
			default:
			}
			select {
			case f.updates <- snapshot:
			default:
			}
		}
	}
}

func (h *FeedHub) remove(f *Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.rooms[f.roomID]
	if _, ok := subs[f]; !ok {
		return
	}
	delete(subs, f)
	if len(subs) == 0 {
		delete(h.rooms, f.roomID)
	}
	close(f.updates)
}

// Feed is one live registration against a room: an ordered view that updates
// wholesale, plus an outbound path for new messages.
type Feed struct {
	hub     *FeedHub
	roomID  string
	sending *semaphore.Weighted
	updates chan []store.Message
	once    sync.Once
}

func (f *Feed) RoomID() string { return f.roomID }

// Updates delivers the full room history, oldest first, on subscribe and
// after every change. The channel closes when the feed is closed.
func (f *Feed) Updates() <-chan []store.Message {
	return f.updates
}

// Send appends a message to the room. Sends are single-flight per feed: while
// one is outstanding, another returns ErrSendInFlight instead of queueing.
// There is no local echo; the sender's message arrives via Updates like
// everyone else's.
func (f *Feed) Send(ctx context.Context, author store.Author, body string) error {
	if !f.sending.TryAcquire(1) {
		return ErrSendInFlight
	}
	defer f.sending.Release(1)

	return f.hub.Append(ctx, f.roomID, author, body)
}

// Close tears the registration down. Safe to call more than once; after it
// returns no further updates are delivered.
func (f *Feed) Close() {
	f.once.Do(func() { f.hub.remove(f) })
}
