package inventory

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"shopsync/internal/model"
	"shopsync/internal/shopify"
	"shopsync/pkg/lock"
	"shopsync/pkg/log"
)

var tracer = otel.Tracer("shopsync/inventory")

// Gateway reads and adjusts Shopify stock.
type Gateway interface {
	FindVariantBySKU(ctx context.Context, sku string) (model.VariantStock, bool, error)
	AdjustAvailable(ctx context.Context, intent model.AdjustmentIntent, reason string) (model.AdjustmentResult, error)
}

// Recorder receives reconciliation metrics.
type Recorder interface {
	ObserveSKUOutcome(status string)
	ObserveReconcileRun(elapsed time.Duration)
}

// Reconciler drives Shopify available quantities toward warehouse counts.
type Reconciler struct {
	gateway  Gateway
	locker   lock.Locker
	recorder Recorder
}

// NewReconciler creates a reconciler. A nil locker means no per-SKU
// serialization; a nil recorder disables metrics.
func NewReconciler(gateway Gateway, locker lock.Locker, recorder Recorder) *Reconciler {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &Reconciler{
		gateway:  gateway,
		locker:   locker,
		recorder: recorder,
	}
}

// Reconcile processes every SKU of every record in order. A failing SKU is
// recorded and the loop moves on.
func (r *Reconciler) Reconcile(ctx context.Context, records []model.InventoryRecord) *model.ReconciliationReport {
	ctx, span := tracer.Start(ctx, "inventory.reconcile")
	defer span.End()
	start := time.Now()

	report := model.NewReconciliationReport()
	for _, rec := range records {
		for _, line := range rec.SKUs {
			outcome := r.reconcileSKU(ctx, rec.CompanyName, line)
			report.Record(outcome)
			if r.recorder != nil {
				r.recorder.ObserveSKUOutcome(string(outcome.Status))
			}
		}
	}

	span.SetAttributes(
		attribute.Int("reconcile.processed", report.Processed),
		attribute.Int("reconcile.updated", report.Updated),
		attribute.Int("reconcile.skipped", report.Skipped),
		attribute.Int("reconcile.failed", report.Failed),
	)
	if r.recorder != nil {
		r.recorder.ObserveReconcileRun(time.Since(start))
	}

	log.WithFields(log.Fields{
		"processed": report.Processed,
		"updated":   report.Updated,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"duration":  time.Since(start).String(),
	}).Info("Inventory reconciliation finished")

	return report
}

func (r *Reconciler) reconcileSKU(ctx context.Context, company string, line model.SKUQuantity) model.Outcome {
	sku := NormalizeSKU(line.SKU)
	out := model.Outcome{Company: company, SKU: sku, Target: line.QuantityOnHand}
	logger := log.WithFields(log.Fields{"company": company, "sku": sku})

	if sku == "" {
		return failed(out, model.ReasonEmptySKU)
	}
	if line.QuantityOnHand < 0 {
		return failed(out, model.ReasonNegativeQuantity)
	}

	release, err := r.locker.Acquire(ctx, sku)
	if err != nil {
		logger.WithError(err).Error("Failed to lock sku")
		return failed(out, err.Error())
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to release sku lock")
		}
	}()

	stock, found, err := r.gateway.FindVariantBySKU(ctx, sku)
	if err != nil {
		logger.WithError(err).Error("Failed to look up variant")
		return failed(out, err.Error())
	}
	if !found {
		logger.Warn("SKU not found in Shopify")
		return failed(out, model.ReasonNotFound)
	}

	primary, ok := stock.PrimaryLocation()
	if !ok {
		logger.Warn("Variant has no inventory levels")
		return failed(out, model.ReasonNoInventoryLevel)
	}

	current := primary.Available
	out.Current = &current
	out.Delta = line.QuantityOnHand - current
	if out.Delta == 0 {
		out.Status = model.OutcomeSkipped
		return out
	}

	intent := model.AdjustmentIntent{
		SKU:             sku,
		LocationID:      primary.LocationID,
		InventoryItemID: stock.InventoryItemID,
		Delta:           out.Delta,
	}
	if _, err := r.gateway.AdjustAvailable(ctx, intent, shopify.AdjustReasonCorrection); err != nil {
		logger.WithError(err).WithField("delta", out.Delta).Error("Failed to adjust inventory")
		return failed(out, err.Error())
	}

	logger.WithFields(log.Fields{
		"location_id": primary.LocationID,
		"from":        current,
		"to":          line.QuantityOnHand,
		"delta":       out.Delta,
	}).Info("Inventory adjusted")
	out.Status = model.OutcomeUpdated
	return out
}

func failed(out model.Outcome, reason string) model.Outcome {
	out.Status = model.OutcomeFailed
	out.Reason = reason
	return out
}
