// Package worker consumes ruleset lifecycle events and keeps every node's
// ruleset cache in step with the publisher.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rulesvc"
)

// Invalidator subscribes to TopicRulesetPublished and drops the cached
// ruleset for the published scope, so a freshly published version is
// served on the next evaluation instead of after the cache TTL.
type Invalidator struct {
	bus     domain.EventBus
	service *rulesvc.Service
	logger  *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewInvalidator creates an invalidation worker.
func NewInvalidator(bus domain.EventBus, service *rulesvc.Service, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Invalidator{
		bus:     bus,
		service: service,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes for the given tenants.
func (w *Invalidator) Start(tenantIDs []string) error {
	for _, tenantID := range tenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRulesetPublished, w.handlePublished)
		if err != nil {
			return fmt.Errorf("failed to subscribe for tenant %s: %w", tenantID, err)
		}
		w.subscriptions = append(w.subscriptions, sub)

		w.logger.Info("invalidation worker started",
			"tenant_id", tenantID,
			"topic", domain.TopicRulesetPublished,
		)
	}
	return nil
}

// handlePublished drops the cache entry named by the event.
func (w *Invalidator) handlePublished(ctx context.Context, msg *domain.Message) error {
	var event domain.RulesetPublishedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.logger.Error("invalid ruleset published event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	key := domain.RulesetKey{Domain: event.Domain, Jurisdiction: event.Jurisdiction}
	w.service.Invalidate(ctx, event.TenantID, key)

	w.logger.Info("ruleset cache invalidated by publish event",
		"tenant_id", event.TenantID,
		"scope", key.String(),
		"version", event.RulesetVersion,
	)
	return nil
}

// Stop cancels all subscriptions.
func (w *Invalidator) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.cancel()
	w.logger.Info("invalidation worker stopped")
}
