// Package worker mirrors the local activity log to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"walletwise/internal/amqp"
	"walletwise/internal/core"
	applog "walletwise/internal/log"
	"walletwise/internal/sheets"
	"walletwise/internal/storage"
)

// ActivityStore is the part of the activity log the worker needs.
type ActivityStore interface {
	Get(ctx context.Context, id int64) (core.Activity, error)
	PendingSync(ctx context.Context, limit int) ([]core.Activity, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// Observer receives one call per sync attempt.
type Observer interface {
	ActivitySynced(err error)
}

// SyncWorker copies activity rows to the spreadsheet mirror, once per row.
type SyncWorker struct {
	store     ActivityStore
	mirror    sheets.Mirror
	observer  Observer
	logger    *applog.Logger
	batchSize int
}

func NewSyncWorker(store ActivityStore, mirror sheets.Mirror, observer Observer, batchSize int, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &SyncWorker{
		store:     store,
		mirror:    mirror,
		observer:  observer,
		logger:    logger.WithComponent(applog.ComponentWorker),
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes one message from the queue. It has the
// signature of amqp.Handler.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ActivitySyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		applog.FieldActivityID, msg.ActivityID,
		"message_id", msg.MessageID.String())

	a, err := w.store.Get(ctx, msg.ActivityID)
	if errors.Is(err, storage.ErrActivityNotFound) {
		// nothing to mirror, acking is correct
		w.logger.WarnContext(ctx, "Activity not found, skipping", applog.FieldActivityID, msg.ActivityID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get activity: %w", err)
	}
	if a.SyncStatus == core.SyncDone {
		return nil
	}
	return w.sync(ctx, a)
}

// ProcessPending mirrors up to one batch of unsynced activities and returns
// how many succeeded. It is the fallback for lost messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending activities: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending activities", applog.FieldCount, len(pending))
	synced := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.sync(ctx, a); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync activity",
				applog.FieldActivityID, a.ID, applog.FieldError, err)
			continue
		}
		synced++
	}
	return synced, nil
}

// RunSweep calls ProcessPending immediately and then on every interval until
// ctx ends.
func (w *SyncWorker) RunSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Sweep failed", applog.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *SyncWorker) sync(ctx context.Context, a core.Activity) error {
	// a redelivered message may already be in the sheet
	found, err := w.mirror.HasRef(ctx, a)
	if err != nil {
		w.fail(ctx, a, err)
		return fmt.Errorf("check mirror: %w", err)
	}

	ref := "existing"
	if !found {
		ref, err = w.mirror.Append(ctx, a)
		if err != nil {
			w.fail(ctx, a, err)
			return fmt.Errorf("append to mirror: %w", err)
		}
	}

	if err := w.store.MarkSynced(ctx, a.ID); err != nil {
		// the row is in the sheet; HasRef keeps the next attempt from duplicating it
		w.logger.ErrorContext(ctx, "Failed to mark activity synced",
			applog.FieldActivityID, a.ID, applog.FieldError, err)
	}
	if w.observer != nil {
		w.observer.ActivitySynced(nil)
	}
	w.logger.InfoContext(ctx, "Activity synced",
		applog.FieldActivityID, a.ID,
		applog.FieldBillID, a.BillID,
		"sheets_ref", ref,
		"already_present", found)
	return nil
}

func (w *SyncWorker) fail(ctx context.Context, a core.Activity, cause error) {
	if w.observer != nil {
		w.observer.ActivitySynced(cause)
	}
	if err := w.store.MarkSyncError(ctx, a.ID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark sync error",
			applog.FieldActivityID, a.ID, applog.FieldError, err)
	}
}
