package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"go.uber.org/zap"
)

// Notifier tells the outside world about a new borrowing.
type Notifier interface {
	Notify(ctx context.Context, event model.BorrowingEvent) error
}

type Config struct {
	URL       string        `yaml:"url" envconfig:"NOTIFY_URL"`
	ChannelID string        `yaml:"channelID" envconfig:"NOTIFY_CHANNEL_ID"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

func (cfg Config) Enabled() bool {
	return cfg.URL != ""
}

type nopNotifier struct {
	log *zap.Logger
}

func NewNop(log *zap.Logger) Notifier {
	return &nopNotifier{log: log.Named("notify")}
}

func (n *nopNotifier) Notify(_ context.Context, event model.BorrowingEvent) error {
	n.log.Debug("notification sink is not configured", zap.Int64("borrowing_id", event.BorrowingID))
	return nil
}

// Async hands events to the wrapped notifier on a separate goroutine and
// returns at once. Failures are only logged.
type Async struct {
	next    Notifier
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration, log *zap.Logger) *Async {
	return &Async{
		next:    next,
		timeout: timeout,
		log:     log.Named("notify"),
	}
}

func (a *Async) Notify(_ context.Context, event model.BorrowingEvent) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// the request context is gone by the time this runs
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, event); err != nil {
			a.log.Warn("Notify", zap.Int64("borrowing_id", event.BorrowingID), zap.Error(err))
		}
	}()
	return nil
}

// Close waits for in-flight notifications.
func (a *Async) Close() {
	a.wg.Wait()
}
