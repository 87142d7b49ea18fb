// Package webhook posts decision alerts to an operator-configured URL.
//
// Alerts are sent in a goroutine so they never block the HTTP response.
// Failed deliveries are logged but not retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"riskgate/decision-api/internal/domain"
)

// EventHeader names the header carrying the event type on every alert.
const EventHeader = "X-Riskgate-Event"

const deliveryTimeout = 5 * time.Second

// Notifier posts a DecisionEvent for every decision at or above a minimum
// severity.
type Notifier struct {
	url    string
	min    domain.Decision
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Notifier that alerts url for decisions at least as severe
// as min. A nil logger means slog.Default().
func New(url string, min domain.Decision, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url: url,
		min: min,
		client: &http.Client{
			Timeout: deliveryTimeout,
		},
		logger: logger.With("component", "webhook"),
	}
}

// Publish fires the alert in the background when the event's decision meets
// the configured minimum.
func (n *Notifier) Publish(event domain.DecisionEvent) {
	if event.Result.Decision.Severity() < n.min.Severity() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(event)
	}()
}

// Close waits for in-flight deliveries or until ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send delivers a single alert and logs the outcome.
func (n *Notifier) send(event domain.DecisionEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal payload", "event_id", event.EventID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build request", "event_id", event.EventID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.Event)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("delivery failed", "url", n.url, "event_id", event.EventID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		n.logger.Warn("delivery rejected",
			"url", n.url,
			"status", resp.StatusCode,
			"transaction_id", event.TransactionID,
		)
		return
	}
	n.logger.Info("delivered",
		"url", n.url,
		"status", resp.StatusCode,
		"transaction_id", event.TransactionID,
		"decision", event.Result.Decision,
		"risk_score", event.Result.RiskScore,
	)
}
