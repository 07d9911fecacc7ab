// Package greenapi is a minimal sender client for the Green API
// WhatsApp gateway, used to deliver agent replies back to the chat a
// webhook came from.
package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://api.green-api.com"

type Client struct {
	baseURL    string
	instanceID string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, instanceID, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		instanceID: instanceID,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// methodURL builds the documented URL shape:
// {base}/waInstance{id}{method}/{token}
func (c *Client) methodURL(methodPath string) string {
	return fmt.Sprintf("%s/waInstance%s%s/%s", c.baseURL, c.instanceID, methodPath, c.token)
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// SendMessage sends a text message to a WhatsApp chat. chatID has the
// form "79991234567@c.us".
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Message: text})
	if err != nil {
		return fmt.Errorf("greenapi: failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("/sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("greenapi: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("greenapi: sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("greenapi: sendMessage returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
