package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/peterh/liner"

	"github.com/parlorlabs/parlor/internal/store"
)

type screen int

const (
	screenLogin screen = iota
	screenWelcome
	screenChat
	screenQuit
)

// App drives the three screens (login, welcome, chat) from a line-based
// prompt. Which screen is active is decided purely by session and room state.
type App struct {
	api      *Client
	sessions *SessionStore
	line     *liner.State
	session  *Session
	out      io.Writer // assistant output lands here; stdout outside tests

	// chat screen state
	roomID   string
	roomPass string

	// at most one AI operation in flight; completions carry the generation
	// they were issued under and are dropped if the chat has moved on
	aiBusy  atomic.Bool
	chatGen atomic.Int64

	mu      sync.Mutex
	history []store.Message
}

func NewApp(api *Client, sessions *SessionStore) *App {
	return &App{api: api, sessions: sessions, out: os.Stdout}
}

func (a *App) Run(ctx context.Context) error {
	a.line = liner.NewLiner()
	a.line.SetCtrlCAborts(true)
	defer a.line.Close()

	current := screenLogin
	if a.session = a.sessions.Restore(); a.session != nil {
		a.api.SetBearer(a.session.Token)
		current = screenWelcome
	}

	for current != screenQuit {
		var err error
		switch current {
		case screenLogin:
			current, err = a.loginScreen(ctx)
		case screenWelcome:
			current, err = a.welcomeScreen(ctx)
		case screenChat:
			current, err = a.chatScreen(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// forceLogout destroys the local session unconditionally and lands back on
// the login screen. The backend token clear is best-effort only.
func (a *App) forceLogout(ctx context.Context) screen {
	if a.session != nil {
		if err := a.api.Logout(ctx); err != nil {
			log.Printf("Backend logout failed (continuing locally): %v", err)
		}
	}
	if err := a.sessions.Clear(); err != nil {
		log.Printf("Failed to clear local session: %v", err)
	}
	a.session = nil
	a.api.SetBearer("")
	return screenLogin
}

// staleSession handles a 401 from any authenticated call: the stored token no
// longer matches (logged out, or logged in elsewhere), so the cached session
// is dead.
func (a *App) staleSession(ctx context.Context) screen {
	fmt.Println("Your session is no longer valid. Please log in again.")
	a.session = nil
	a.api.SetBearer("")
	if err := a.sessions.Clear(); err != nil {
		log.Printf("Failed to clear local session: %v", err)
	}
	return screenLogin
}

func (a *App) loginScreen(ctx context.Context) (screen, error) {
	fmt.Println("\n-- Login (type 'register' to create an account, 'quit' to exit) --")

	userID, err := a.line.Prompt("User ID: ")
	if err != nil {
		return screenQuit, nil
	}
	userID = strings.TrimSpace(userID)
	switch userID {
	case "quit":
		return screenQuit, nil
	case "register":
		return a.registerFlow(ctx)
	case "":
		fmt.Println("User ID is required.")
		return screenLogin, nil
	}

	password, err := a.line.PasswordPrompt("Password: ")
	if err != nil {
		return screenQuit, nil
	}

	sess, err := a.api.Login(ctx, userID, password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			fmt.Println("Incorrect user ID or password.")
		} else {
			fmt.Println("Failed to connect to the server.")
		}
		return screenLogin, nil
	}

	a.session = sess
	if err := a.sessions.Persist(sess); err != nil {
		// The login itself succeeded; the session just won't survive a
		// restart.
		log.Printf("Failed to persist session: %v", err)
	}
	return screenWelcome, nil
}

func (a *App) registerFlow(ctx context.Context) (screen, error) {
	userID, err := a.line.Prompt("New user ID: ")
	if err != nil {
		return screenQuit, nil
	}
	password, err := a.line.PasswordPrompt("Password: ")
	if err != nil {
		return screenQuit, nil
	}
	name, err := a.line.Prompt("Display name: ")
	if err != nil {
		return screenQuit, nil
	}

	if err := a.api.Register(ctx, strings.TrimSpace(userID), password, strings.TrimSpace(name)); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			fmt.Println("That user ID is taken.")
		} else {
			fmt.Println("Registration failed:", err)
		}
		return screenLogin, nil
	}
	fmt.Println("Account created. You can log in now.")
	return screenLogin, nil
}

func (a *App) welcomeScreen(ctx context.Context) (screen, error) {
	fmt.Printf("\n-- Welcome, %s --\n", a.session.Profile.Name)
	fmt.Println("[1] enter a room  [2] create a room  [3] change name  [4] set picture  [5] logout  [q] quit")

	choice, err := a.line.Prompt("> ")
	if err != nil {
		return screenQuit, nil
	}

	switch strings.TrimSpace(choice) {
	case "1":
		return a.enterRoomFlow(ctx)
	case "2":
		a.createRoomFlow(ctx)
		return screenWelcome, nil
	case "3":
		a.changeNameFlow(ctx)
		return screenWelcome, nil
	case "4":
		a.setPictureFlow(ctx)
		return screenWelcome, nil
	case "5":
		return a.forceLogout(ctx), nil
	case "q", "quit":
		return screenQuit, nil
	default:
		return screenWelcome, nil
	}
}

func (a *App) enterRoomFlow(ctx context.Context) (screen, error) {
	roomID, err := a.line.Prompt("Room ID: ")
	if err != nil {
		return screenQuit, nil
	}
	password, err := a.line.PasswordPrompt("Room password: ")
	if err != nil {
		return screenQuit, nil
	}

	roomID = strings.TrimSpace(roomID)
	if err := a.api.ValidateRoom(ctx, roomID, password); err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			return a.staleSession(ctx), nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
			// An unknown room and a wrong password read the same from the
			// welcome screen.
			fmt.Println("Invalid room ID or password.")
		default:
			fmt.Println("Failed to connect to room.")
		}
		return screenWelcome, nil
	}

	a.roomID = roomID
	a.roomPass = password
	return screenChat, nil
}

func (a *App) createRoomFlow(ctx context.Context) {
	roomID, err := a.line.Prompt("New room ID: ")
	if err != nil {
		return
	}
	password, err := a.line.PasswordPrompt("New room password: ")
	if err != nil {
		return
	}

	roomID = strings.TrimSpace(roomID)
	if err := a.api.CreateRoom(ctx, roomID, password); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			fmt.Println("A room with this ID already exists.")
		case errors.Is(err, ErrBadRequest):
			fmt.Println("Please provide an ID and password for the new room.")
		default:
			fmt.Println("Failed to create room.")
		}
		return
	}
	fmt.Printf("Room '%s' created successfully!\n", roomID)
}

func (a *App) changeNameFlow(ctx context.Context) {
	name, err := a.line.Prompt("New display name: ")
	if err != nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	profile, err := a.api.UpdateProfile(ctx, &name, nil)
	if err != nil {
		fmt.Println("Failed to update name:", err)
		return
	}
	a.applyProfile(profile)
}

// setPictureFlow loads a small image file and stores it inline as a data URL.
func (a *App) setPictureFlow(ctx context.Context) {
	path, err := a.line.Prompt("Image file path: ")
	if err != nil {
		return
	}

	picture, err := EncodePictureFile(strings.TrimSpace(path))
	if err != nil {
		fmt.Println(err)
		return
	}

	profile, err := a.api.UpdateProfile(ctx, nil, &picture)
	if err != nil {
		fmt.Println("Failed to update profile picture:", err)
		return
	}
	a.applyProfile(profile)
}

// applyProfile merges a profile update into the session and re-persists it.
func (a *App) applyProfile(profile *Profile) {
	a.session.Profile = *profile
	if err := a.sessions.Persist(a.session); err != nil {
		log.Printf("Failed to persist session: %v", err)
	}
}

func (a *App) chatScreen(ctx context.Context) (screen, error) {
	feed, err := a.api.OpenFeed(ctx, a.roomID, a.roomPass)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return a.staleSession(ctx), nil
		}
		fmt.Println("Failed to connect to room:", err)
		return screenWelcome, nil
	}
	defer feed.Close()

	gen := a.chatGen.Add(1)
	// moving off this screen retires its generation, so any AI completion
	// still in flight lands silently
	defer a.chatGen.Add(1)

	fmt.Printf("\n-- Room: %s --\n", a.roomID)
	fmt.Println("Commands: /summarize  /fix <draft>  /suggest [draft]  /leave  /logout  /quit")

	done := make(chan struct{})
	go a.readFeed(feed, done)

	for {
		input, err := a.line.Prompt(fmt.Sprintf("[%s] ", a.roomID))
		if err != nil { // Ctrl-C or EOF leaves the room
			return screenWelcome, nil
		}
		select {
		case <-done: // feed dropped underneath us
			fmt.Println("Disconnected from room.")
			return screenWelcome, nil
		default:
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case input == "/leave":
			return screenWelcome, nil
		case input == "/logout":
			return a.forceLogout(ctx), nil
		case input == "/quit":
			return screenQuit, nil
		case input == "/summarize":
			a.runAssist(ctx, gen, "Summary", func(ctx context.Context) (string, error) {
				return a.api.Summarize(ctx, a.snapshot())
			})
		case strings.HasPrefix(input, "/fix "):
			draft := strings.TrimPrefix(input, "/fix ")
			a.runAssist(ctx, gen, "Corrected", func(ctx context.Context) (string, error) {
				return a.api.FixGrammar(ctx, draft)
			})
		case input == "/suggest" || strings.HasPrefix(input, "/suggest "):
			draft := strings.TrimSpace(strings.TrimPrefix(input, "/suggest"))
			a.runAssist(ctx, gen, "Suggestion", func(ctx context.Context) (string, error) {
				return a.api.SuggestReply(ctx, a.snapshot(), draft)
			})
		default:
			a.line.AppendHistory(input)
			if err := feed.Send(input); err != nil {
				fmt.Println("Failed to send message.")
			}
		}
	}
}

// readFeed consumes feed events until the socket dies, keeping the local
// history current and printing messages as they arrive. The displayed list is
// replaced wholesale on every snapshot, so it can never tear.
func (a *App) readFeed(feed *FeedConn, done chan struct{}) {
	defer close(done)
	seen := 0
	for {
		ev, err := feed.Next()
		if err != nil {
			return
		}
		switch ev.Type {
		case "snapshot":
			a.mu.Lock()
			a.history = ev.Messages
			a.mu.Unlock()
			for ; seen < len(ev.Messages); seen++ {
				msg := ev.Messages[seen]
				fmt.Printf("\r%s %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.Author.Name, msg.Body)
			}
		case "error":
			fmt.Printf("\r%s\n", ev.Error)
		}
	}
}

func (a *App) snapshot() []store.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history
}

// runAssist fires one AI operation. Only one may be in flight; the triggering
// commands are refused, not queued, while one is active. A completion that
// lands after the chat generation has moved on is discarded.
func (a *App) runAssist(ctx context.Context, gen int64, label string, call func(context.Context) (string, error)) {
	if !a.aiBusy.CompareAndSwap(false, true) {
		fmt.Fprintln(a.out, "The assistant is already working on something.")
		return
	}

	go func() {
		defer a.aiBusy.Store(false)
		text, err := call(ctx)
		if a.chatGen.Load() != gen {
			return // stale completion, the screen that asked is gone
		}
		if err != nil {
			fmt.Fprintf(a.out, "\rThe assistant is unavailable right now. Please try again.\n")
			return
		}
		fmt.Fprintf(a.out, "\r%s: %s\n", label, text)
	}()
}

// EncodePictureFile reads an image and returns it as an inline data URL,
// enforcing the same size cap the server does.
func EncodePictureFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot read image: %w", err)
	}
	if info.Size() > 750*1024 {
		return "", errors.New("image too large (max 750KB)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read image: %w", err)
	}
	return dataURL(path, data), nil
}
