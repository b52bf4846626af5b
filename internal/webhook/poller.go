package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/mkorolev/qrlink/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const pollBatchSize = 100

// Poller re-drives failed deliveries once their next_retry_at has arrived.
// It is the in-process stand-in for the scheduler the delivery engine's
// contract assumes: "call the delivery attempt again after next_retry_at".
type Poller struct {
	repo       repository.WebhookRepository
	dispatcher *Dispatcher
	interval   time.Duration
	cron       *cron.Cron
	logger     *zap.Logger
}

func NewPoller(repo repository.WebhookRepository, dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		repo:       repo,
		dispatcher: dispatcher,
		interval:   interval,
		cron:       cron.New(),
		logger:     logger,
	}
}

func (p *Poller) Start() error {
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, p.run); err != nil {
		return fmt.Errorf("failed to schedule webhook poller: %w", err)
	}

	p.cron.Start()
	p.logger.Info("webhook retry poller started", zap.Duration("interval", p.interval))
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("webhook retry poller stopped")
}

func (p *Poller) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	due, err := p.repo.GetDueDeliveries(ctx, time.Now(), pollBatchSize)
	if err != nil {
		p.logger.Error("failed to load due deliveries", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	p.logger.Debug("retrying due deliveries", zap.Int("count", len(due)))

	for _, delivery := range due {
		if err := p.dispatcher.Retry(ctx, delivery.ID); err != nil {
			p.logger.Warn("delivery retry failed",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
		}
	}
}
