package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler repairs document aggregates that drifted because a refresh
// failed after its invoice row had been saved.
type Reconciler struct {
	docs     Documents
	interval time.Duration
	log      *slog.Logger
}

func NewReconciler(docs Documents, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{docs: docs, interval: interval, log: slog.With("component", "reconciler")}
}

// RepairStale recomputes every document marked stale and returns how many
// were repaired. Documents that fail again stay marked.
func (r *Reconciler) RepairStale(ctx context.Context) (int, error) {
	ids, err := r.docs.ListStale(ctx)
	if err != nil {
		return 0, err
	}
	return r.repair(ctx, ids), nil
}

// RepairAll recomputes every document.
func (r *Reconciler) RepairAll(ctx context.Context) (int, error) {
	ids, err := r.docs.ListDocumentIDs(ctx)
	if err != nil {
		return 0, err
	}
	return r.repair(ctx, ids), nil
}

func (r *Reconciler) repair(ctx context.Context, ids []int64) int {
	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.docs.RecomputeAggregates(ctx, id); err != nil {
			r.log.Error("reconcile failed", "document_id", id, "error", err)
			continue
		}
		repaired++
	}
	return repaired
}

// Run repairs stale documents every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("reconciler started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			n, err := r.RepairStale(ctx)
			if err != nil {
				r.log.Error("listing stale documents failed", "error", err)
				continue
			}
			if n > 0 {
				r.log.Info("stale documents repaired", "count", n)
			}
		}
	}
}
