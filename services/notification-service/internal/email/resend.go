package email

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultResendURL = "https://api.resend.com/emails"

// ResendSender posts messages to the Resend HTTP API with a bearer token.
type ResendSender struct {
	url    string
	apiKey string
	from   string
	http   *http.Client
}

func NewResendSender(url, apiKey, from string) *ResendSender {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultResendURL
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = DefaultFrom
	}
	return &ResendSender{
		url:    url,
		apiKey: strings.TrimSpace(apiKey),
		from:   from,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *ResendSender) ProviderID() string {
	return "resend"
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if s.apiKey == "" {
		return errors.New("resend api key not configured")
	}
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	raw, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
