// Package push sends notifications through an Expo-compatible push API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxBatch is the largest number of messages accepted in one request.
const MaxBatch = 100

const (
	ErrDeviceNotRegistered = "DeviceNotRegistered"
	ErrInvalidCredentials  = "InvalidCredentials"
)

type Message struct {
	To    string         `json:"to"`
	Sound string         `json:"sound,omitempty"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the per-message result returned by the push service, in the
// same order as the messages sent.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

func (t Ticket) OK() bool {
	return t.Status == "ok"
}

// TokenInvalid reports whether the ticket says the device token can never
// be delivered to again.
func (t Ticket) TokenInvalid() bool {
	if t.Status != "error" {
		return false
	}
	code := t.Message
	if t.Details != nil && t.Details.Error != "" {
		code = t.Details.Error
	}
	return code == ErrDeviceNotRegistered || code == ErrInvalidCredentials
}

// StatusError is a non-2xx response from the push service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether resending the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

func NewClient(endpoint, accessToken string, timeout time.Duration) *Client {
	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type sendResponse struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts up to MaxBatch messages in one request and returns one ticket
// per message.
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxBatch {
		return nil, fmt.Errorf("push batch of %d exceeds limit of %d", len(messages), MaxBatch)
	}
	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("push service error %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	if len(out.Data) != len(messages) {
		return nil, fmt.Errorf("push service returned %d tickets for %d messages", len(out.Data), len(messages))
	}
	return out.Data, nil
}
