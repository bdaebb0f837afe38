package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/flagkeeper/internal/auth"
)

const (
	defaultWebhookTimeout = 5 * time.Second

	// webhookSubject identifies the service itself in the bearer token
	// attached to outgoing deliveries.
	webhookSubject = "flagkeeper"
)

// WebhookNotifier POSTs each event as JSON to a single configured URL.
// Deliveries are authenticated with a short-lived bearer token signed by the
// service secret, so receivers can verify the origin.
type WebhookNotifier struct {
	url       string
	secretKey string
	tokenTTL  time.Duration
	client    *http.Client
}

func NewWebhookNotifier(url, secretKey string, tokenTTL time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:       url,
		secretKey: secretKey,
		tokenTTL:  tokenTTL,
		client:    &http.Client{Timeout: defaultWebhookTimeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flagkeeper-Event", event.Type)
	if n.secretKey != "" {
		token, err := auth.GenerateToken(webhookSubject, []byte(n.secretKey), n.tokenTTL)
		if err != nil {
			return fmt.Errorf("sign delivery: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
