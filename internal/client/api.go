package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorlabs/parlor/internal/store"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrBusy          = errors.New("operation in flight")
)

// Client is the thin HTTP/WebSocket client for the chat server.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) SetBearer(token string) { c.bearer = token }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to the server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, text)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, text)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, text)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, text)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, text)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrBusy, text)
	default:
		return fmt.Errorf("server error: %s", text)
	}
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"user_id"`
	Profile struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"profile"`
}

func (c *Client) Login(ctx context.Context, userID, password string) (*Session, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{UserID: userID, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.bearer = resp.Token
	return &Session{
		UserID:  resp.UserID,
		Token:   resp.Token,
		Profile: Profile{Name: resp.Profile.Name, Picture: resp.Profile.Picture},
	}, nil
}

type registerRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (c *Client) Register(ctx context.Context, userID, password, name string) error {
	return c.do(ctx, http.MethodPost, "/api/register", registerRequest{UserID: userID, Password: password, Name: name}, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

type profilePatch struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, name, picture *string) (*Profile, error) {
	var resp struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	err := c.do(ctx, http.MethodPatch, "/api/profile", profilePatch{Name: name, Picture: picture}, &resp)
	if err != nil {
		return nil, err
	}
	return &Profile{Name: resp.Name, Picture: resp.Picture}, nil
}

type roomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

func (c *Client) CreateRoom(ctx context.Context, roomID, password string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms", roomRequest{RoomID: roomID, Password: password}, nil)
}

func (c *Client) ValidateRoom(ctx context.Context, roomID, password string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/validate",
		struct {
			Password string `json:"password"`
		}{password}, nil)
}

type assistRequest struct {
	History []store.Message `json:"history,omitempty"`
	Draft   string          `json:"draft,omitempty"`
}

func (c *Client) assistCall(ctx context.Context, path string, req assistRequest) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) Summarize(ctx context.Context, history []store.Message) (string, error) {
	return c.assistCall(ctx, "/api/assist/summarize", assistRequest{History: history})
}

func (c *Client) FixGrammar(ctx context.Context, draft string) (string, error) {
	return c.assistCall(ctx, "/api/assist/fix-grammar", assistRequest{Draft: draft})
}

func (c *Client) SuggestReply(ctx context.Context, history []store.Message, draft string) (string, error) {
	return c.assistCall(ctx, "/api/assist/suggest-reply", assistRequest{History: history, Draft: draft})
}

// FeedEvent mirrors the server's feed frames.
type FeedEvent struct {
	Type     string          `json:"type"`
	Messages []store.Message `json:"messages,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// FeedConn is a live registration against a room, carried on a websocket.
type FeedConn struct {
	conn *websocket.Conn
}

// OpenFeed dials the room's websocket endpoint. The caller owns the
// connection and must Close it when leaving the room.
func (c *Client) OpenFeed(ctx context.Context, roomID, password string) (*FeedConn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/rooms/" + url.PathEscape(roomID) + "/ws"
	u.RawQuery = url.Values{"password": {password}}.Encode()

	header := http.Header{}
	if c.bearer != "" {
		header.Set("Authorization", "Bearer "+c.bearer)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, statusError(resp)
		}
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}
	return &FeedConn{conn: conn}, nil
}

// Next blocks until the server pushes the next event.
func (f *FeedConn) Next() (*FeedEvent, error) {
	var ev FeedEvent
	if err := f.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (f *FeedConn) Send(body string) error {
	return f.conn.WriteJSON(struct {
		Body string `json:"body"`
	}{body})
}

func (f *FeedConn) Close() error {
	return f.conn.Close()
}
