// Package mailer delivers one-time passcodes to account owners.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Mailer sends the verification code for an account
type Mailer interface {
	SendOTP(ctx context.Context, to, name string, code int, ttl time.Duration) error
}

const brevoAPIURL = "https://api.brevo.com/v3/smtp/email"

var otpTemplate = template.Must(template.New("otp").Parse(`<html><body>
<p>Hi {{.Name}},</p>
<p>Your BellyRush verification code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes. If you did not sign up, ignore this email.</p>
</body></html>`))

// Brevo sends transactional mail through the Brevo HTTP API v3
type Brevo struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	URL         string
	client      *http.Client
}

func NewBrevo(apiKey, senderEmail, senderName string) *Brevo {
	return &Brevo{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		URL:         brevoAPIURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type sendEmailReq struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HtmlContent string              `json:"htmlContent"`
}

func (b *Brevo) SendOTP(ctx context.Context, to, name string, code int, ttl time.Duration) error {
	var html bytes.Buffer
	err := otpTemplate.Execute(&html, struct {
		Name    string
		Code    int
		Minutes int
	}{name, code, int(ttl.Minutes())})
	if err != nil {
		return fmt.Errorf("render otp email: %w", err)
	}

	body, err := json.Marshal(sendEmailReq{
		Sender:      map[string]string{"email": b.SenderEmail, "name": b.SenderName},
		To:          []map[string]string{{"email": to, "name": name}},
		Subject:     "Your BellyRush verification code",
		HtmlContent: html.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create brevo request: %w", err)
	}
	req.Header.Set("api-key", b.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo send email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errorBody); decodeErr != nil {
			return fmt.Errorf("brevo API error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("brevo API error: status %d, body: %v", resp.StatusCode, errorBody)
	}
	return nil
}

// Log writes codes to the logger instead of sending mail. Development only.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) SendOTP(_ context.Context, to, _ string, code int, ttl time.Duration) error {
	l.log.Info("otp mail (not sent)", zap.String("to", to), zap.Int("code", code), zap.Duration("ttl", ttl))
	return nil
}

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("mail provider unavailable")

// Breaker stops calling a failing provider until it has had time to recover
type Breaker struct {
	next Mailer
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Mailer, maxFailures uint32, timeout time.Duration, log *zap.Logger) *Breaker {
	st := gobreaker.Settings{
		Name:        "mailer",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) SendOTP(ctx context.Context, to, name string, code int, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.SendOTP(ctx, to, name, code, ttl)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}
