package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"log/slog"

	"github.com/innovaedu/wabot/core/config"
	"github.com/innovaedu/wabot/core/logger"
)

var bearerRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._-]+`)

// APIError is a Graph API error response mapped onto the HTTP status
// that carried it.
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (%d): %s [code=%d trace=%s]", e.HTTPStatus, e.Message, e.Code, e.TraceID)
}

// Transient reports whether the call may succeed on retry.
func (e *APIError) Transient() bool {
	return e.HTTPStatus >= 500 || e.HTTPStatus == http.StatusTooManyRequests
}

// Sender delivers one message to one recipient identity.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// Client talks to the WhatsApp Cloud API messages endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	token      string
	mock       bool
}

// NewClient builds a Cloud API client from configuration. In mock mode
// outbound payloads are logged instead of sent, which keeps local
// development usable without Meta credentials.
func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		httpClient: BuildHTTPClient(),
		url: fmt.Sprintf("%s/%s/%s/messages",
			cfg.GraphBaseURL, cfg.APIVersion, cfg.PhoneNumberID),
		token: cfg.AccessToken,
		mock:  cfg.MockMode,
	}
}

// Send posts one message to the Graph API. A non-2xx response is
// returned as *APIError so callers can decide on retries.
func (c *Client) Send(ctx context.Context, to string, msg Message) error {
	payload, err := msg.payload(to)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	if c.mock {
		logger.Info(ctx, "wa", "send.mock",
			slog.String("status", "ok"),
			slog.String("wa_id", to),
			slog.String("kind", string(msg.Kind)),
			slog.String("payload", logger.SanitizeLimit(string(body), 512)),
		)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %s", RedactToken(err.Error()))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		apiErr.TraceID = envelope.Error.TraceID
	} else {
		apiErr.Message = logger.SanitizeLimit(string(raw), 256)
	}
	return apiErr
}

// RedactToken strips bearer credentials from error text before logging.
func RedactToken(msg string) string {
	return bearerRe.ReplaceAllString(msg, "${1}<redacted>")
}
