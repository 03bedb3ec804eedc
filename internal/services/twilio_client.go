// internal/services/twilio_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/javajoker/dealer-contracts/internal/config"
)

// TwilioClient posts SMS and WhatsApp messages to the Twilio Messages API.
type TwilioClient struct {
	cfg        config.TwilioConfig
	httpClient *http.Client
}

type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type TwilioHTTPError struct {
	StatusCode int
	Body       string
	APIError   *twilioAPIError
}

func (e *TwilioHTTPError) Error() string {
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
	}
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, msg)
}

// Retryable reports whether Twilio asked us to back off or failed on its side.
func (e *TwilioHTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func NewTwilioClient(cfg config.TwilioConfig) *TwilioClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *TwilioClient) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != ""
}

func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, c.cfg.FromNumber, to, body)
}

// SendWhatsApp prefixes both numbers with the whatsapp: channel address.
func (c *TwilioClient) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	from := c.cfg.WhatsAppFrom
	if from == "" {
		from = c.cfg.FromNumber
	}
	return c.send(ctx, whatsappAddress(from), whatsappAddress(to), body)
}

func (c *TwilioClient) send(ctx context.Context, from, to, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("twilio: recipient required")
	}
	if strings.TrimSpace(from) == "" {
		return "", fmt.Errorf("twilio: sender required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioAPIError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return "", &TwilioHTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &apiErr}
		}
		return "", &TwilioHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("twilio decode error: %w", err)
	}
	return msg.SID, nil
}

func whatsappAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
