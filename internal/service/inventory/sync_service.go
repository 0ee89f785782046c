package inventory

import (
	"context"

	"shopsync/internal/model"
	"shopsync/pkg/log"
)

// Source supplies the warehouse snapshot.
type Source interface {
	FetchSKUQuantities(ctx context.Context) (*model.SKUQuantitiesResponse, error)
}

// SyncService pulls warehouse counts and reconciles Shopify against them.
type SyncService interface {
	// SyncFromSource fetches the snapshot and reconciles it. Only a failure
	// to obtain the snapshot is returned as an error.
	SyncFromSource(ctx context.Context) (*model.SKUQuantitiesResponse, *model.ReconciliationReport, error)
}

type syncService struct {
	source     Source
	reconciler *Reconciler
}

// NewSyncService creates a sync service
func NewSyncService(source Source, reconciler *Reconciler) SyncService {
	return &syncService{
		source:     source,
		reconciler: reconciler,
	}
}

func (s *syncService) SyncFromSource(ctx context.Context) (*model.SKUQuantitiesResponse, *model.ReconciliationReport, error) {
	snapshot, err := s.source.FetchSKUQuantities(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to fetch sku quantities")
		return nil, nil, err
	}

	log.WithFields(log.Fields{
		"companies": len(snapshot.Data),
	}).Info("Fetched sku quantities")

	report := s.reconciler.Reconcile(ctx, snapshot.Data)
	return snapshot, report, nil
}
