package reporting

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// upsertOps describes one record kind to the shared create-or-merge flow.
type upsertOps[T any] struct {
	get    func(ctx context.Context, tx store.Tx) (*T, error)
	create func(now time.Time) (*T, error)
	merge  func(cur *T, now time.Time) error
	insert func(ctx context.Context, tx store.Tx, rec *T) error
	update func(ctx context.Context, tx store.Tx, rec *T) error
}

// upsert runs get-then-insert-or-update in one transaction. When the insert
// loses a race on the primary key the whole operation runs once more and
// takes the merge path.
func upsert[T any](ctx context.Context, s *service, kind model.Kind, id int64, ops upsertOps[T]) (*T, bool, error) {
	var (
		out     *T
		created bool
	)
	run := func() error {
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			now := s.now()
			cur, err := ops.get(ctx, tx)
			if errors.Is(err, store.ErrNotFound) {
				rec, err := ops.create(now)
				if err != nil {
					return err
				}
				if err := ops.insert(ctx, tx, rec); err != nil {
					return err
				}
				out, created = rec, true
				return nil
			}
			if err != nil {
				return err
			}

			if err := ops.merge(cur, now); err != nil {
				return err
			}
			if err := ops.update(ctx, tx, cur); err != nil {
				return err
			}
			out, created = cur, false
			return nil
		})
	}

	err := run()
	if store.IsUniqueViolation(err, "id") {
		s.logger.Info("Concurrent insert detected, retrying as update",
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
		)
		err = run()
	}
	if err != nil {
		return nil, false, translate(err, kind, id)
	}
	return out, created, nil
}

func (s *service) UpsertReporter(ctx context.Context, principal model.Principal, id int64, patch model.ReporterPatch) (_ *model.Reporter, err error) {
	defer s.observe("upsert_reporter", time.Now(), &err)

	reporter, created, err := upsert(ctx, s, model.KindReporter, id, upsertOps[model.Reporter]{
		get: func(ctx context.Context, tx store.Tx) (*model.Reporter, error) {
			return tx.GetReporter(ctx, id)
		},
		create: func(now time.Time) (*model.Reporter, error) {
			r := &model.Reporter{ID: id, RegistrationDate: now}
			patch.ApplyTo(r)
			return r, r.Validate()
		},
		merge: func(r *model.Reporter, _ time.Time) error {
			patch.ApplyTo(r)
			return r.Validate()
		},
		insert: func(ctx context.Context, tx store.Tx, r *model.Reporter) error {
			return tx.InsertReporter(ctx, r)
		},
		update: func(ctx context.Context, tx store.Tx, r *model.Reporter) error {
			return tx.UpdateReporter(ctx, r)
		},
	})
	if err != nil {
		return nil, err
	}

	s.logUpsert(ctx, principal, model.KindReporter, id, created)
	return reporter, nil
}

func (s *service) UpsertPatient(ctx context.Context, principal model.Principal, id int64, patch model.PatientPatch) (_ *model.Patient, err error) {
	defer s.observe("upsert_patient", time.Now(), &err)

	write := func(ctx context.Context, p *model.Patient, put func(context.Context, *model.Patient) error) error {
		sealed, err := s.sealPatient(*p)
		if err != nil {
			return err
		}
		return put(ctx, &sealed)
	}

	patient, created, err := upsert(ctx, s, model.KindPatient, id, upsertOps[model.Patient]{
		get: func(ctx context.Context, tx store.Tx) (*model.Patient, error) {
			p, err := tx.GetPatient(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := s.openPatient(p, s.now()); err != nil {
				return nil, err
			}
			return p, nil
		},
		create: func(now time.Time) (*model.Patient, error) {
			p := &model.Patient{ID: id}
			patch.ApplyTo(p)
			return p, p.Validate(now)
		},
		merge: func(p *model.Patient, now time.Time) error {
			patch.ApplyTo(p)
			return p.Validate(now)
		},
		insert: func(ctx context.Context, tx store.Tx, p *model.Patient) error {
			return write(ctx, p, tx.InsertPatient)
		},
		update: func(ctx context.Context, tx store.Tx, p *model.Patient) error {
			return write(ctx, p, tx.UpdatePatient)
		},
	})
	if err != nil {
		return nil, err
	}

	patient.Age = patient.AgeAt(s.now())
	s.logUpsert(ctx, principal, model.KindPatient, id, created)
	return patient, nil
}

func (s *service) UpsertDisease(ctx context.Context, principal model.Principal, id int64, patch model.DiseasePatch) (_ *model.Disease, err error) {
	defer s.observe("upsert_disease", time.Now(), &err)

	disease, created, err := upsert(ctx, s, model.KindDisease, id, upsertOps[model.Disease]{
		get: func(ctx context.Context, tx store.Tx) (*model.Disease, error) {
			return tx.GetDisease(ctx, id)
		},
		create: func(now time.Time) (*model.Disease, error) {
			d := &model.Disease{ID: id, DateCreated: now, CreatedBy: principal.ID}
			patch.ApplyTo(d)
			return d, d.Validate()
		},
		merge: func(d *model.Disease, now time.Time) error {
			detected := d.DateDetected
			patch.ApplyTo(d)
			// The detection date is fixed once recorded.
			d.DateDetected = detected
			updatedBy := principal.ID
			d.UpdatedBy = &updatedBy
			d.DateUpdated = &now
			return d.Validate()
		},
		insert: func(ctx context.Context, tx store.Tx, d *model.Disease) error {
			return tx.InsertDisease(ctx, d)
		},
		update: func(ctx context.Context, tx store.Tx, d *model.Disease) error {
			return tx.UpdateDisease(ctx, d)
		},
	})
	if err != nil {
		return nil, err
	}

	s.logUpsert(ctx, principal, model.KindDisease, id, created)
	return disease, nil
}

func (s *service) logUpsert(ctx context.Context, principal model.Principal, kind model.Kind, id int64, created bool) {
	action := "UPDATE"
	if created {
		action = "CREATE"
	}
	s.logger.Info("Record upserted",
		zap.String("kind", string(kind)),
		zap.Int64("id", id),
		zap.String("action", action),
		zap.Int64("principal", principal.ID),
	)
	s.record(ctx, principal, audit.EventModify, action, kind, id)
}
