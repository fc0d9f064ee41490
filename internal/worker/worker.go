// Package worker reacts to catalog publishes by projecting drift across
// every affected risk profile.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/drift"
	"github.com/opensource-compliance/gavel/internal/metrics"
)

// Worker consumes catalog-published events from the EventBus and drives the
// drift tracker. Publishing stays fast because this fan-out happens off the
// request path.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	tracker *drift.Tracker
	metrics *metrics.Metrics

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a new drift worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, tracker *drift.Tracker, m *metrics.Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		tracker: tracker,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming catalog publishes for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("drift workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCatalogPublished, func(ctx context.Context, msg *domain.Message) error {
		return w.processPublish(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicCatalogPublished,
	)

	return nil
}

// processPublish projects drift across every profile scored against the
// superseded version.
func (w *Worker) processPublish(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var event domain.CatalogPublishedEvent
	if err := msg.Decode(&event); err != nil {
		slog.Error("failed to parse catalog publish event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.TenantID != "" {
		tenantID = event.TenantID
	}

	// First publish for a jurisdiction supersedes nothing.
	if event.OldVersionID == "" || event.Diff.Empty() {
		slog.Debug("catalog publish needs no drift evaluation",
			"tenant_id", tenantID,
			"jurisdiction", event.JurisdictionID,
		)
		return nil
	}

	newVersion, err := w.repo.GetRegulationVersion(ctx, tenantID, event.NewVersionID)
	if err != nil {
		slog.Error("failed to load published version",
			"version_id", event.NewVersionID,
			"error", err,
		)
		return err
	}

	profiles, err := w.repo.ListRiskProfilesByVersion(ctx, tenantID, event.OldVersionID)
	if err != nil {
		slog.Error("failed to load affected profiles",
			"version_id", event.OldVersionID,
			"error", err,
		)
		return err
	}

	records, err := w.tracker.EvaluateAll(ctx, tenantID, profiles, newVersion, event.Diff)
	if err != nil {
		slog.Error("drift evaluation failed",
			"tenant_id", tenantID,
			"jurisdiction", event.JurisdictionID,
			"error", err,
		)
		return err
	}

	for _, rec := range records {
		w.metrics.IncrementDrift(string(rec.Status))
	}

	slog.Info("catalog publish processed",
		"tenant_id", tenantID,
		"jurisdiction", event.JurisdictionID,
		"affected_profiles", len(profiles),
		"drift_records", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("drift workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
