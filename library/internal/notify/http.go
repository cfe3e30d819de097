package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/circuit_breaker"
	"github.com/Astemirdum/library-borrowing/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const sinkHTTP = "http"

type message struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type httpNotifier struct {
	client *http.Client
	cfg    Config
	cb     circuit_breaker.CircuitBreaker
	log    *zap.Logger
}

// NewHTTPNotifier posts a chat message per event to cfg.URL.
func NewHTTPNotifier(cfg Config, log *zap.Logger) Notifier {
	return &httpNotifier{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		cb:     circuit_breaker.New(10, 30*time.Second, 0.5, 3),
		log:    log.Named("notify.http"),
	}
}

func (n *httpNotifier) Notify(ctx context.Context, event model.BorrowingEvent) error {
	err := n.cb.Call(func() error {
		return n.send(ctx, event)
	})
	metrics.ObserveNotification(sinkHTTP, err)
	return err
}

func (n *httpNotifier) send(ctx context.Context, event model.BorrowingEvent) error {
	body, err := json.Marshal(message{ChatID: n.cfg.ChannelID, Text: event.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "client.Do")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck
		return errors.Errorf("notification sink responded %d: %s", resp.StatusCode, data)
	}
	n.log.Debug("sent", zap.Int64("borrowing_id", event.BorrowingID))
	return nil
}
