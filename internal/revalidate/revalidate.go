// Package revalidate tells public pages that their content changed.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/sse"
	"github.com/rs/zerolog"
)

// EventRevalidate is sent to SSE subscribers of a changed page.
const EventRevalidate = "revalidate"

var ErrWebhook = errors.New("revalidation webhook failed")

var revalidateLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	revalidateLogger = l
}

// Revalidator notifies SSE subscribers and, if configured, a webhook such
// as a CDN or ISR invalidation endpoint.
type Revalidator struct {
	clients    *sse.SSEClients
	webhookURL string
	secret     string
	client     *http.Client
}

func New(clients *sse.SSEClients, cfg config.RevalidationConfig) *Revalidator {
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Revalidator{
		clients:    clients,
		webhookURL: cfg.WebhookURL,
		secret:     cfg.Secret,
		client:     &http.Client{Timeout: timeout},
	}
}

func (r *Revalidator) Revalidate(ctx context.Context, path string) error {
	if r.clients != nil {
		n := r.clients.Broadcast(path, EventRevalidate)
		revalidateLogger.Debug().Str("path", path).Int("subscribers", n).Msg("Revalidation broadcast")
	}

	if r.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhook, err)
	}
	req.Header.Set(config.HCType, config.CTypeJSON)
	if r.secret != "" {
		req.Header.Set(config.HRevalidateSecret, r.secret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %s", ErrWebhook, resp.Status)
	}
	return nil
}
