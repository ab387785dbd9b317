package service

import (
	"context"
	"log"
	"time"

	"plumbpos/backend/internal/audit"
	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

// ListHistory returns records newest first. Limit falls back to 200.
func (s *Service) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.UserHistoryRecord, error) {
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, store.Invalid("from", "must not be after to")
	}
	return s.repo.ListHistory(ctx, filter)
}

func (s *Service) GetHistory(ctx context.Context, id int64) (domain.UserHistoryRecord, error) {
	rec, err := s.repo.GetHistoryByID(ctx, id)
	if err != nil {
		return domain.UserHistoryRecord{}, err
	}
	return *rec, nil
}

// HistoryDiff reports which top-level fields a record changed, together with
// both snapshots decoded into their table's type.
func (s *Service) HistoryDiff(ctx context.Context, id int64) (domain.HistoryDiffResponse, error) {
	rec, err := s.repo.GetHistoryByID(ctx, id)
	if err != nil {
		return domain.HistoryDiffResponse{}, err
	}
	changed, err := audit.ComputeFieldDiff(rec.OldData, rec.NewData)
	if err != nil {
		return domain.HistoryDiffResponse{}, store.Invalid("snapshot", err.Error())
	}
	oldVal, err := audit.Decode(rec.LinkedActionTable, rec.OldData)
	if err != nil {
		return domain.HistoryDiffResponse{}, store.Invalid("old_data", err.Error())
	}
	newVal, err := audit.Decode(rec.LinkedActionTable, rec.NewData)
	if err != nil {
		return domain.HistoryDiffResponse{}, store.Invalid("new_data", err.Error())
	}
	return domain.HistoryDiffResponse{
		ID:      rec.ID,
		Action:  rec.Action,
		Table:   rec.LinkedActionTable,
		Changed: changed,
		Old:     oldVal,
		New:     newVal,
	}, nil
}

// DeleteHistory removes one record if it is at least RetentionFloor old. The
// age check lives in the delete statement, so a young or missing record both
// come back as RetentionWindowError.
func (s *Service) DeleteHistory(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if id < 1 {
		return store.Invalid("id", "must be greater than 0")
	}

	cutoff := audit.Floor(s.clock())
	var deleted int64
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		deleted, err = tx.DeleteHistory(ctx, id, cutoff)
		return err
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return &store.RetentionWindowError{ID: id}
	}

	log.Printf("[audit] history record %d deleted by %s", id, actor.Username)
	return nil
}

// BulkDeleteHistory removes every record older than the window. The cutoff
// is clamped to the retention floor.
func (s *Service) BulkDeleteHistory(ctx context.Context, window string) (domain.BulkDeleteResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.BulkDeleteResponse{}, err
	}
	w, err := audit.ParseWindow(window)
	if err != nil {
		return domain.BulkDeleteResponse{}, store.Invalid("window", err.Error())
	}

	cutoff := w.Cutoff(s.clock())
	var deleted int64
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		deleted, err = tx.DeleteHistoryBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return domain.BulkDeleteResponse{}, err
	}

	log.Printf("[audit] %d history records older than %s deleted by %s (window %s)", deleted, cutoff.Format(time.RFC3339), actor.Username, w.Name)
	return domain.BulkDeleteResponse{Window: w.Name, Cutoff: cutoff.Format(time.RFC3339), Deleted: deleted}, nil
}
