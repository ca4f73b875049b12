// Package telegram is a minimal Telegram Bot API client: long-poll update
// consumption and message/photo sending. Only the surface the bot needs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Update is one incoming event from getUpdates.
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	ID   int64  `json:"message_id"`
	From *User  `json:"from"`
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client communicates with the Telegram Bot API over HTTP.
type Client struct {
	api        string
	httpClient *http.Client
}

// New creates a Client for the given bot token.
func New(token string) *Client {
	return NewWithBaseURL(token, defaultBaseURL)
}

// NewWithBaseURL creates a Client against a custom API endpoint (for testing).
func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		api: strings.TrimRight(baseURL, "/") + "/bot" + token,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// GetMe returns the bot's own account, verifying the token works.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

type updatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// Updates long-polls getUpdates. The call blocks up to pollTimeout seconds
// on the server side; the HTTP deadline is padded past it so a full poll
// window is never cut off mid-flight.
func (c *Client) Updates(ctx context.Context, offset int64, pollTimeout int) ([]Update, error) {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(pollTimeout+10)*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(ctx, "getUpdates", updatesRequest{
		Offset:         offset,
		Timeout:        pollTimeout,
		AllowedUpdates: []string{"message"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage sends plain text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, nil)
}

type chatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

// SendChatAction shows a typing/uploading indicator while slow work runs.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.call(ctx, "sendChatAction", chatActionRequest{ChatID: chatID, Action: action}, nil)
}

// SendPhoto uploads a photo with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("writing chat_id field: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("writing caption field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("photo", "card.png")
	if err != nil {
		return fmt.Errorf("creating photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("writing photo bytes: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/sendPhoto", &buf)
	if err != nil {
		return fmt.Errorf("creating sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendPhoto request: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope("sendPhoto", resp, nil)
}

// call invokes a Bot API method with a JSON body and decodes the result
// envelope into result (when non-nil).
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/"+method, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(method, resp, result)
}

// decodeEnvelope unwraps the ok/result envelope. API-level failures arrive
// as ok=false with a description, regardless of HTTP status.
func decodeEnvelope(method string, resp *http.Response, result any) error {
	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	if !env.OK {
		return fmt.Errorf("%s: %s", method, env.Description)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
