// Package discord delivers notifications as Discord webhook embeds.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/pricing"
)

type payload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Color       int     `json:"color"`
	Footer      *footer `json:"footer,omitempty"`
	Image       *image  `json:"image,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

type image struct {
	URL string `json:"url"`
}

// Sender implements notify.Sender. Each call is a single POST with no retry.
type Sender struct {
	client *http.Client
}

// NewSender builds a Sender whose requests time out after timeout.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{client: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// Send posts content to the webhook at endpoint.
func (s *Sender) Send(ctx context.Context, endpoint string, content notify.Content) error {
	body, err := json.Marshal(toPayload(content))
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", pricing.ErrTransportFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: new request: %w", pricing.ErrTransportFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", pricing.ErrTransportFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", pricing.ErrTransportFailed, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func toPayload(c notify.Content) payload {
	e := embed{
		Title:       c.Title,
		Description: c.Body,
		URL:         c.URL,
		Color:       c.Color,
	}
	if c.Footer != "" {
		e.Footer = &footer{Text: c.Footer}
	}
	if c.ImageURL != "" {
		e.Image = &image{URL: c.ImageURL}
	}
	return payload{Content: "", Embeds: []embed{e}}
}
