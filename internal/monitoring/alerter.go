// Package monitoring delivers drift alerts to an external webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/config"
	"github.com/voxmetrics/sentinel/internal/model"
)

// WebhookSink posts drift alerts to a configured webhook URL. Delivery runs
// on a background goroutine behind a bounded queue; when the queue is full
// the alert is dropped and counted, so detection never blocks on a slow
// or unreachable endpoint.
type WebhookSink struct {
	url     string
	client  *http.Client
	queue   chan model.DriftAlert
	dropped atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWebhookSink creates a WebhookSink and starts its delivery goroutine.
func NewWebhookSink(cfg config.MonitoringConfig) *WebhookSink {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	s := &WebhookSink{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan model.DriftAlert, size),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Send enqueues an alert for delivery. Never blocks; a full queue drops
// the alert.
func (s *WebhookSink) Send(alert model.DriftAlert) {
	select {
	case s.queue <- alert:
	default:
		s.dropped.Add(1)
		zap.L().Warn("monitoring: alert queue full, dropping",
			zap.String("subject", alert.Subject),
			zap.String("status", string(alert.Status)),
		)
	}
}

// Dropped returns the number of alerts discarded due to a full queue.
func (s *WebhookSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains the queue and stops the delivery goroutine.
func (s *WebhookSink) Close() {
	s.stopOnce.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *WebhookSink) run() {
	defer s.wg.Done()
	for alert := range s.queue {
		if s.url == "" {
			continue
		}
		if err := s.post(alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("subject", alert.Subject),
				zap.String("model", alert.Model),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("subject", alert.Subject),
			zap.String("model", alert.Model),
			zap.String("status", string(alert.Status)),
		)
	}
}

// post delivers a single alert to the webhook URL.
func (s *WebhookSink) post(alert model.DriftAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NopSink discards every alert. Used in tests and when no webhook is
// configured.
type NopSink struct{}

func (NopSink) Send(model.DriftAlert) {}
