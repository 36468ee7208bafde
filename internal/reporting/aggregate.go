package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// GetReport returns a report with its related records. A reference that does
// not resolve yields a null sub-record rather than an error.
func (s *service) GetReport(ctx context.Context, id int64) (_ *model.ReportView, err error) {
	defer s.observe("get_report", time.Now(), &err)

	var view *model.ReportView
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		report, err := tx.GetReport(ctx, id)
		if err != nil {
			return err
		}
		view, err = s.resolve(ctx, tx, report)
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindReport, id)
	}
	return view, nil
}

// GetMostRecentSubmitted returns the Submitted report updated most recently.
func (s *service) GetMostRecentSubmitted(ctx context.Context) (_ *model.ReportView, err error) {
	defer s.observe("get_most_recent_submitted", time.Now(), &err)

	var view *model.ReportView
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		report, err := tx.LatestReportByStatus(ctx, model.StatusSubmitted)
		if err != nil {
			return err
		}
		view, err = s.resolve(ctx, tx, report)
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindReport, 0)
	}
	return view, nil
}

// ListReports returns one page of reports in ascending id order. Related
// records are fetched with one batched lookup per kind. A reference that does
// not resolve fails the whole page with ErrDataInconsistency.
func (s *service) ListReports(ctx context.Context, offset, limit int) (_ []model.ReportView, err error) {
	defer s.observe("list_reports", time.Now(), &err)

	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var views []model.ReportView
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		page, err := tx.ListReports(ctx, offset, limit)
		if err != nil {
			return err
		}
		views, err = s.join(ctx, tx, page)
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindReport, 0)
	}
	return views, nil
}

func (s *service) join(ctx context.Context, tx store.Tx, page []model.Report) ([]model.ReportView, error) {
	views := make([]model.ReportView, 0, len(page))
	if len(page) == 0 {
		return views, nil
	}

	reporters, err := tx.GetReporters(ctx, refs(page, func(r model.Report) *int64 { return r.ReporterID }))
	if err != nil {
		return nil, err
	}
	patients, err := tx.GetPatients(ctx, refs(page, func(r model.Report) *int64 { return r.PatientID }))
	if err != nil {
		return nil, err
	}
	diseases, err := tx.GetDiseases(ctx, refs(page, func(r model.Report) *int64 { return r.DiseaseID }))
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range patients {
		if err := s.openPatient(&patients[i], now); err != nil {
			return nil, err
		}
	}

	reporterByID := lo.KeyBy(reporters, func(r model.Reporter) int64 { return r.ID })
	patientByID := lo.KeyBy(patients, func(p model.Patient) int64 { return p.ID })
	diseaseByID := lo.KeyBy(diseases, func(d model.Disease) int64 { return d.ID })

	for _, report := range page {
		view := model.ReportView{Report: report}
		var ok bool
		if view.Reporter, ok = lookup(reporterByID, report.ReporterID); !ok {
			return nil, s.inconsistent(report.ID, model.KindReporter, *report.ReporterID)
		}
		if view.Patient, ok = lookup(patientByID, report.PatientID); !ok {
			return nil, s.inconsistent(report.ID, model.KindPatient, *report.PatientID)
		}
		if view.Disease, ok = lookup(diseaseByID, report.DiseaseID); !ok {
			return nil, s.inconsistent(report.ID, model.KindDisease, *report.DiseaseID)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *service) inconsistent(reportID int64, kind model.Kind, ref int64) error {
	s.logger.Error("Report references a missing record",
		zap.Int64("report_id", reportID),
		zap.String("kind", string(kind)),
		zap.Int64("ref", ref),
	)
	return ErrDataInconsistency
}

// refs collects the distinct non-null ids selected from a page.
func refs(page []model.Report, pick func(model.Report) *int64) []int64 {
	return lo.Uniq(lo.FilterMap(page, func(r model.Report, _ int) (int64, bool) {
		id := pick(r)
		if id == nil {
			return 0, false
		}
		return *id, true
	}))
}

// lookup resolves a nullable reference. A null reference resolves to nil.
func lookup[T any](byID map[int64]T, id *int64) (*T, bool) {
	if id == nil {
		return nil, true
	}
	v, ok := byID[*id]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (s *service) resolve(ctx context.Context, tx store.Tx, report *model.Report) (*model.ReportView, error) {
	view := &model.ReportView{Report: *report}

	if report.ReporterID != nil {
		r, err := tx.GetReporter(ctx, *report.ReporterID)
		if err := tolerateMissing(err); err != nil {
			return nil, err
		}
		view.Reporter = r
	}
	if report.PatientID != nil {
		p, err := tx.GetPatient(ctx, *report.PatientID)
		if err := tolerateMissing(err); err != nil {
			return nil, err
		}
		if p != nil {
			if err := s.openPatient(p, s.now()); err != nil {
				return nil, err
			}
		}
		view.Patient = p
	}
	if report.DiseaseID != nil {
		d, err := tx.GetDisease(ctx, *report.DiseaseID)
		if err := tolerateMissing(err); err != nil {
			return nil, err
		}
		view.Disease = d
	}
	return view, nil
}

func tolerateMissing(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *service) GetReporter(ctx context.Context, id int64) (_ *model.Reporter, err error) {
	defer s.observe("get_reporter", time.Now(), &err)

	var reporter *model.Reporter
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetReporter(ctx, id)
		reporter = r
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindReporter, id)
	}
	return reporter, nil
}

func (s *service) GetPatient(ctx context.Context, id int64) (_ *model.Patient, err error) {
	defer s.observe("get_patient", time.Now(), &err)

	var patient *model.Patient
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPatient(ctx, id)
		if err != nil {
			return err
		}
		if err := s.openPatient(p, s.now()); err != nil {
			return err
		}
		patient = p
		return nil
	})
	if err != nil {
		return nil, translate(err, model.KindPatient, id)
	}
	return patient, nil
}

func (s *service) GetDisease(ctx context.Context, id int64) (_ *model.Disease, err error) {
	defer s.observe("get_disease", time.Now(), &err)

	var disease *model.Disease
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		d, err := tx.GetDisease(ctx, id)
		disease = d
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindDisease, id)
	}
	return disease, nil
}
