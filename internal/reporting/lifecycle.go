package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// CreateReport stores a new report owned by the principal. The initial
// status is whatever the caller supplies.
func (s *service) CreateReport(ctx context.Context, principal model.Principal, patch model.ReportPatch) (_ *model.Report, err error) {
	defer s.observe("create_report", time.Now(), &err)

	report := &model.Report{}
	patch.ApplyTo(report)
	if err := report.Validate(); err != nil {
		return nil, translate(err, model.KindReport, 0)
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		reporterID := principal.ID
		report.ReporterID = &reporterID
		report.DateCreated = s.now()
		return tx.InsertReport(ctx, report)
	})
	if err != nil {
		return nil, translate(err, model.KindReport, 0)
	}

	s.logger.Info("Report created",
		zap.Int64("report_id", report.ID),
		zap.String("status", string(report.Status)),
		zap.Int64("principal", principal.ID),
	)
	s.record(ctx, principal, audit.EventModify, "CREATE", model.KindReport, report.ID)
	return report, nil
}

// UpdateReport merges patch into a Draft report.
func (s *service) UpdateReport(ctx context.Context, principal model.Principal, id int64, patch model.ReportPatch) (_ *model.Report, err error) {
	defer s.observe("update_report", time.Now(), &err)

	var report *model.Report
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := mutableReport(ctx, tx, id)
		if err != nil {
			return err
		}

		from := cur.Status
		patch.ApplyTo(cur)
		if err := cur.Validate(); err != nil {
			return err
		}
		if !from.CanTransition(cur.Status) {
			return &ConstraintViolationError{
				Field:   "status",
				Message: fmt.Sprintf("report %d cannot move from %s to %s", id, from, cur.Status),
			}
		}

		now := s.now()
		updatedBy := principal.ID
		cur.UpdatedBy = &updatedBy
		cur.DateUpdated = &now
		if err := tx.UpdateReport(ctx, cur); err != nil {
			return err
		}
		report = cur
		return nil
	})
	if err != nil {
		return nil, translate(err, model.KindReport, id)
	}

	s.logger.Info("Report updated",
		zap.Int64("report_id", id),
		zap.String("status", string(report.Status)),
		zap.Int64("principal", principal.ID),
	)
	s.record(ctx, principal, audit.EventModify, "UPDATE", model.KindReport, id)
	return report, nil
}

// DeleteReport removes a Draft report and confirms it is gone before
// committing.
func (s *service) DeleteReport(ctx context.Context, principal model.Principal, id int64) (err error) {
	defer s.observe("delete_report", time.Now(), &err)

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := mutableReport(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.DeleteReport(ctx, id); err != nil {
			return err
		}

		_, err := tx.GetReport(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		return &StoreFailureError{Message: fmt.Sprintf("report %d was not deleted", id)}
	})
	if err != nil {
		return translate(err, model.KindReport, id)
	}

	s.logger.Info("Report deleted",
		zap.Int64("report_id", id),
		zap.Int64("principal", principal.ID),
	)
	s.record(ctx, principal, audit.EventDelete, "DELETE", model.KindReport, id)
	return nil
}

// mutableReport loads a report and rejects it unless it is still a draft.
func mutableReport(ctx context.Context, tx store.Tx, id int64) (*model.Report, error) {
	report, err := tx.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.IsMutable() {
		return nil, &NotModifiableError{Kind: model.KindReport, ID: id, Status: report.Status}
	}
	return report, nil
}
