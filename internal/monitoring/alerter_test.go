package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/config"
	"github.com/voxmetrics/sentinel/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testAlert(subject string) model.DriftAlert {
	return model.DriftAlert{
		Subject:  subject,
		PromptID: "brand_rep",
		Model:    "claude-sonnet-4-5",
		Drift:    0.82,
		Status:   model.DriftDecayed,
		TS:       time.Now().UTC(),
	}
}

func TestWebhookSink_Delivers(t *testing.T) {
	var mu sync.Mutex
	var received []model.DriftAlert

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a model.DriftAlert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		mu.Lock()
		received = append(received, a)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(config.MonitoringConfig{WebhookURL: srv.URL, QueueSize: 8})
	sink.Send(testAlert("acme.com"))
	sink.Send(testAlert("globex.com"))
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "acme.com", received[0].Subject)
	assert.Equal(t, model.DriftDecayed, received[0].Status)
}

func TestWebhookSink_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(config.MonitoringConfig{WebhookURL: srv.URL, QueueSize: 1})

	// First alert occupies the delivery goroutine, second fills the queue,
	// the rest must drop without blocking.
	for i := 0; i < 10; i++ {
		sink.Send(testAlert("acme.com"))
	}
	assert.GreaterOrEqual(t, sink.Dropped(), int64(1))

	close(release)
	sink.Close()
}

func TestWebhookSink_NoURLDiscards(t *testing.T) {
	sink := NewWebhookSink(config.MonitoringConfig{})
	sink.Send(testAlert("acme.com"))
	sink.Close()
	assert.Equal(t, int64(0), sink.Dropped())
}

func TestWebhookSink_ServerErrorDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(config.MonitoringConfig{WebhookURL: srv.URL, QueueSize: 4})
	sink.Send(testAlert("acme.com"))
	sink.Close()
}

func TestNopSink(t *testing.T) {
	var s NopSink
	s.Send(testAlert("acme.com"))
}
