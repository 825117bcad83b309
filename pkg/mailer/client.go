package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

const sendPath = "/v3/mail/send"

var errLoggerRequired = errors.New("mailer logger is required")

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender is the email surface consumed by services. The consumers hang on to
// this interface so tests can substitute a recorder.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client delivers mail through the SendGrid v3 JSON API. When no API key is
// configured it logs the message instead of sending, which keeps local
// development working without credentials.
type Client struct {
	baseURL  string
	apiKey   string
	from     address
	httpc    *http.Client
	logger   *logger.Logger
	disabled bool
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewClient constructs the mail client from configuration.
func NewClient(cfg config.MailConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("mail api base url is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		from: address{
			Email: cfg.DefaultFrom,
			Name:  cfg.FromName,
		},
		httpc:    &http.Client{Timeout: 10 * time.Second},
		logger:   logg,
		disabled: apiKey == "",
	}, nil
}

// Send delivers one message. Provider rejections come back as errors so the
// caller can decide whether the triggering operation should roll back.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("mail subject is required")
	}
	if c.disabled {
		ctx = c.logger.WithFields(ctx, map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		})
		c.logger.Info(ctx, "mail delivery disabled, logging message")
		return nil
	}

	payload := sendRequest{
		Personalizations: []personalization{{To: []address{{Email: msg.To}}}},
		From:             c.from,
		Subject:          msg.Subject,
	}
	if msg.TextBody != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		payload.Content = append(payload.Content, content{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(payload.Content) == 0 {
		return fmt.Errorf("mail body is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
