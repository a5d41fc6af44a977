// Package gateway delivers SMS and email through the notification gateway
// service, or email directly over SMTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/obs/retry"
	"go.uber.org/zap"
)

var (
	_ notification.SMSSender   = (*Client)(nil)
	_ notification.EmailSender = (*Client)(nil)
)

type Client struct {
	c        *http.Client
	smsPol   retry.Policy
	emailPol retry.Policy
	log      *zap.Logger
}

// New wraps an HTTP client; attempts bounds the per-recipient retries.
func New(c *http.Client, attempts int, log *zap.Logger) *Client {
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("component", "gateway.client"))
	return &Client{
		c:        c,
		smsPol:   retry.DeliveryPolicy("gateway_sms", attempts, log),
		emailPol: retry.DeliveryPolicy("gateway_email", attempts, log),
		log:      log,
	}
}

// SendSMS calls GET {endpoint}?to=<phone>&text=<message>.
func (cl *Client) SendSMS(ctx context.Context, phone, message, endpointURL string) error {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return fmt.Errorf("parse sms endpoint: %w", err)
	}
	q := u.Query()
	q.Set("to", phone)
	q.Set("text", message)
	u.RawQuery = q.Encode()

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &retry.Permanent{Err: err}
		}
		return cl.do(req)
	}, cl.smsPol)
}

// SendEmail calls POST {endpoint} with {to, subject, text, html}.
func (cl *Client) SendEmail(ctx context.Context, msg notification.Email, endpointURL string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
		if err != nil {
			return &retry.Permanent{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		return cl.do(req)
	}, cl.emailPol)
}

func (cl *Client) do(req *http.Request) error {
	resp, err := cl.c.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("gateway status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &retry.Permanent{Err: err}
	}
	return err
}
