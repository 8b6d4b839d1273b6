// Package backend is the REST client for the chat server's request/response
// API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/store"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL. A nil hc uses a client with a 15s timeout.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
	}
}

func (c *Client) FetchChats(ctx context.Context) ([]store.ChatSummary, error) {
	var chats []store.ChatSummary
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	return chats, nil
}

// FetchMessages returns one page of history, newest first. An empty cursor
// fetches the most recent page.
func (c *Client) FetchMessages(ctx context.Context, chatID, cursor string) (store.Page, error) {
	path := "/chats/" + url.PathEscape(chatID) + "/messages"
	if cursor != "" {
		path += "?" + url.Values{"cursor": {cursor}}.Encode()
	}
	var page store.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return store.Page{}, fmt.Errorf("fetch messages %s: %w", chatID, err)
	}
	return page, nil
}

func (c *Client) FetchChatDetails(ctx context.Context, chatID string) (store.ChatDetails, error) {
	var details store.ChatDetails
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/details", nil, &details); err != nil {
		return store.ChatDetails{}, fmt.Errorf("fetch chat details %s: %w", chatID, err)
	}
	return details, nil
}

func (c *Client) FetchContacts(ctx context.Context) ([]store.Contact, error) {
	var contacts []store.Contact
	if err := c.do(ctx, http.MethodGet, "/contacts", nil, &contacts); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return contacts, nil
}

func (c *Client) FetchPendingRequests(ctx context.Context) ([]store.PendingRequest, error) {
	var reqs []store.PendingRequest
	if err := c.do(ctx, http.MethodGet, "/contacts/pending", nil, &reqs); err != nil {
		return nil, fmt.Errorf("fetch pending requests: %w", err)
	}
	return reqs, nil
}

type postMessageRequest struct {
	Content  string `json:"content"`
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
}

// PostMessage sends a text message. clientID is echoed back on the
// resulting websocket message event so the optimistic entry can be matched.
func (c *Client) PostMessage(ctx context.Context, chatID, content, clientID string) (store.Message, error) {
	body := postMessageRequest{Content: content, Type: "text", ClientID: clientID}
	var msg store.Message
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", body, &msg); err != nil {
		return store.Message{}, fmt.Errorf("post message %s: %w", chatID, err)
	}
	return msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body, which
// the server shapes as {"error": "..."} or {"message": "..."}.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String {
			return r.Str
		}
	}
	return ""
}
