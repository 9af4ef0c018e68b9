package worker

import (
	"context"
	"time"

	"market-service/internal/broker"
	"market-service/internal/models"
	"market-service/internal/redisclient"
	"market-service/internal/service"
	"market-service/internal/util"

	"go.uber.org/zap"
)

const eventClaimTTL = 24 * time.Hour

// PromotionWorker consumes PurchaseQualified events, waits out the
// settlement delay, and runs the cashback flow. Delivery is at-least-once;
// a redis claim per event id keeps redeliveries from paying twice.
type PromotionWorker struct {
	consumer   *broker.Consumer
	handler    *broker.EventHandler
	promotions *service.PromotionService
	redis      *redisclient.Client
	delay      time.Duration
	logger     *zap.Logger
}

// NewPromotionWorker creates a new promotion worker
func NewPromotionWorker(
	consumer *broker.Consumer,
	promotions *service.PromotionService,
	redis *redisclient.Client,
	delay time.Duration,
) *PromotionWorker {
	w := &PromotionWorker{
		consumer:   consumer,
		handler:    broker.NewEventHandler(),
		promotions: promotions,
		redis:      redis,
		delay:      delay,
		logger:     util.NamedLogger("promotion-worker"),
	}
	w.handler.OnPurchaseQualified(w.handlePurchaseQualified)
	return w
}

// Start starts the worker loop
func (w *PromotionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting promotion worker", zap.Duration("settlement_delay", w.delay))
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *PromotionWorker) Stop() error {
	w.logger.Info("Stopping promotion worker")
	return w.consumer.Close()
}

func (w *PromotionWorker) handlePurchaseQualified(ctx context.Context, event *models.PurchaseQualifiedEvent) error {
	// Model real settlement latency: process no earlier than delay past
	// the purchase timestamp
	if wait := time.Until(event.Timestamp.Add(w.delay)); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	claimed, err := w.redis.ClaimEvent(ctx, event.EventID, eventClaimTTL)
	if err != nil {
		w.logger.Warn("Event claim failed, processing anyway", zap.Error(err))
	} else if !claimed {
		w.logger.Info("Event already processed, skipping",
			zap.String("event_id", event.EventID))
		util.CashbackJobsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if err := w.promotions.ProcessCashback(ctx, event.UserID, event.ProductID); err != nil {
		util.CashbackJobsTotal.WithLabelValues("error").Inc()
		w.logger.Error("Cashback processing failed",
			zap.String("event_id", event.EventID),
			zap.String("user_id", event.UserID),
			zap.Error(err))
		// Release the claim so the redelivery gets another attempt
		if claimErr := w.redis.ReleaseEventClaim(ctx, event.EventID); claimErr != nil {
			w.logger.Warn("Failed to release event claim", zap.Error(claimErr))
		}
		return err
	}

	util.CashbackJobsTotal.WithLabelValues("success").Inc()
	return nil
}
