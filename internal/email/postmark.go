// Package email sends notification emails through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
)

const defaultEndpoint = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	endpoint    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithEndpoint overrides the Postmark API URL.
func WithEndpoint(url string) Option {
	return func(cl *Client) {
		cl.endpoint = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		endpoint:    defaultEndpoint,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token and sender are set.
func (c *Client) Configured() bool {
	return c.serverToken != "" && c.fromEmail != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendNotification emails a notification title and message to one address.
// tag is passed to Postmark for per-category reporting.
func (c *Client) SendNotification(ctx context.Context, toEmail, title, message, tag string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token or sender")
	}

	textBody := fmt.Sprintf("%s\n\n%s\n\n-- FoodBridge", title, message)
	htmlBody := fmt.Sprintf("<h2>%s</h2><p>%s</p><p>FoodBridge</p>",
		html.EscapeString(title), html.EscapeString(message))

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "FoodBridge: " + title,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      tag,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
