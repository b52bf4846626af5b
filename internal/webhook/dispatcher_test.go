package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/mkorolev/qrlink/internal/config"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/service/mocks"
	"github.com/mkorolev/qrlink/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatcherConfig() config.WebhookConfig {
	return config.WebhookConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
	}
}

func setupDispatcher(cfg config.WebhookConfig) (*webhook.Dispatcher, *mocks.MockWebhookRepository) {
	repo := mocks.NewMockWebhookRepository()
	logger, _ := zap.NewDevelopment()
	return webhook.NewDispatcher(repo, cfg, logger), repo
}

func scanFixture() (*models.Link, *models.ScanEvent) {
	dest := "https://example.com"
	link := &models.Link{
		ID:             1,
		ShortCode:      "menu",
		Name:           "Dinner menu",
		ContentType:    models.ContentURL,
		DestinationURL: &dest,
		OwnerID:        42,
		Tier:           models.TierPro,
	}
	country := "Germany"
	scan := &models.ScanEvent{
		ID:         uuid.New(),
		LinkID:     1,
		ShortCode:  "menu",
		ScannedAt:  time.Now().UTC(),
		IPHash:     "deadbeefdeadbeefdeadbeefdeadbeef",
		DeviceType: "mobile",
		OS:         "ios",
		Browser:    "safari",
		Country:    &country,
	}
	return link, scan
}

func registerConfig(t *testing.T, repo *mocks.MockWebhookRepository, url string, linkID *int64) *models.WebhookConfig {
	t.Helper()
	cfg := &models.WebhookConfig{
		LinkID:  linkID,
		OwnerID: 42,
		URL:     url,
		Secret:  "whsec_test",
		Active:  true,
		Events:  []string{models.EventScan},
	}
	require.NoError(t, repo.CreateConfig(context.Background(), cfg))
	return cfg
}

func TestDispatcher_SuccessfulDelivery(t *testing.T) {
	var received struct {
		signature  string
		deliveryID string
		event      string
		timestamp  string
		body       []byte
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.signature = r.Header.Get("X-Qrlink-Signature")
		received.deliveryID = r.Header.Get("X-Qrlink-Delivery-Id")
		received.event = r.Header.Get("X-Qrlink-Event")
		received.timestamp = r.Header.Get("X-Qrlink-Timestamp")
		received.body, _ = io.ReadAll(r.Body)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	d := deliveries[0]

	assert.Equal(t, models.DeliverySuccess, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	require.NotNil(t, d.LastStatus)
	assert.Equal(t, http.StatusOK, *d.LastStatus)
	assert.Equal(t, "ok", d.LastResponse)
	assert.Nil(t, d.NextRetryAt)

	// The receiver can verify the signature from the headers alone.
	assert.Equal(t, d.ID.String(), received.deliveryID)
	assert.Equal(t, "scan", received.event)
	ts, err := strconv.ParseInt(received.timestamp, 10, 64)
	require.NoError(t, err)
	expected := "sha256=" + webhook.SignPayload(received.body, "whsec_test", ts)
	assert.Equal(t, expected, received.signature)

	// The payload carries the event envelope.
	var payload models.EventPayload
	require.NoError(t, json.Unmarshal(received.body, &payload))
	assert.Equal(t, "scan", payload.Event)
	assert.Equal(t, d.ID.String(), payload.DeliveryID)
	assert.Equal(t, "menu", payload.QRCode.ShortCode)
	assert.Equal(t, scan.ID.String(), payload.Scan.ID)
	assert.Equal(t, "mobile", payload.Scan.DeviceType)
}

func TestDispatcher_ClientErrorExhaustsImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	d := deliveries[0]

	assert.Equal(t, models.DeliveryExhausted, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	require.NotNil(t, d.LastStatus)
	assert.Equal(t, http.StatusNotFound, *d.LastStatus)
	assert.Nil(t, d.NextRetryAt)
}

func TestDispatcher_ServerErrorSchedulesRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	dispatcher.WithClock(func() time.Time { return now })

	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	d := deliveries[0]

	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	require.NotNil(t, d.NextRetryAt)
	assert.Equal(t, now.Add(30*time.Second), *d.NextRetryAt)
}

func TestDispatcher_TooManyRequestsIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, models.DeliveryFailed, deliveries[0].Status)
	assert.NotNil(t, deliveries[0].NextRetryAt)
}

func TestDispatcher_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, url, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	d := deliveries[0]

	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Nil(t, d.LastStatus)
	assert.NotEmpty(t, d.LastResponse)
	assert.NotNil(t, d.NextRetryAt)
}

func TestDispatcher_RetryUntilExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := dispatcherConfig()
	cfg.MaxAttempts = 2
	dispatcher, repo := setupDispatcher(cfg)

	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	require.Equal(t, models.DeliveryFailed, deliveries[0].Status)

	// The second attempt hits the attempt cap and the delivery goes terminal.
	require.NoError(t, dispatcher.Retry(context.Background(), deliveries[0].ID))

	d, err := repo.GetDelivery(context.Background(), deliveries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryExhausted, d.Status)
	assert.Equal(t, 2, d.AttemptCount)
	assert.Nil(t, d.NextRetryAt)
}

func TestDispatcher_RetryOnTerminalDeliveryIsNoop(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)
	require.Equal(t, 1, calls)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	require.Equal(t, models.DeliverySuccess, deliveries[0].Status)

	require.NoError(t, dispatcher.Retry(context.Background(), deliveries[0].ID))
	assert.Equal(t, 1, calls)
}

func TestDispatcher_OwnerWideConfig(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()

	// One owner-wide config, one bound to a different link.
	registerConfig(t, repo, server.URL, nil)
	otherLink := int64(999)
	registerConfig(t, repo, server.URL, &otherLink)

	dispatcher.DispatchScan(context.Background(), link, scan)

	assert.Equal(t, 1, calls)
	assert.Len(t, repo.Deliveries(), 1)
}

func TestDispatcher_ResponseSnippetTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	dispatcher, repo := setupDispatcher(dispatcherConfig())
	link, scan := scanFixture()
	registerConfig(t, repo, server.URL, &link.ID)

	dispatcher.DispatchScan(context.Background(), link, scan)

	deliveries := repo.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Len(t, deliveries[0].LastResponse, 512)
}
