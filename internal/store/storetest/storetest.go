// Package storetest holds behaviour checks shared by every store.Store
// backend. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// Opener returns an empty, migrated store. It is called once per subtest.
type Opener func(t *testing.T) store.Store

var base = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

func Reporter(id int64, email string) *model.Reporter {
	return &model.Reporter{
		ID:                  id,
		FirstName:           "Ada",
		LastName:            "Okafor",
		Email:               email,
		JobTitle:            "Epidemiologist",
		PhoneNumber:         "+233 20 000 0000",
		OrganizationName:    "Regional Health Office",
		OrganizationAddress: "1 Ring Road, Accra",
		RegistrationDate:    base,
	}
}

func Patient(id, mrn int64) *model.Patient {
	return &model.Patient{
		ID:                  id,
		FirstName:           "Kofi",
		LastName:            "Mensah",
		DateOfBirth:         time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC),
		Gender:              model.GenderMale,
		MedicalRecordNumber: mrn,
		PatientAddress:      "12 Market Street",
	}
}

func Disease(id, createdBy int64) *model.Disease {
	return &model.Disease{
		ID:              id,
		Name:            "Cholera",
		Category:        model.CategoryBacterial,
		DateDetected:    base.Add(-48 * time.Hour),
		Symptoms:        "diarrhoea, dehydration",
		SeverityLevel:   model.SeverityHigh,
		TreatmentStatus: model.TreatmentOngoing,
		DateCreated:     base,
		CreatedBy:       createdBy,
	}
}

func ptr[T any](v T) *T { return &v }

func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	seed := func(t *testing.T, s store.Store) {
		t.Helper()
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.InsertReporter(ctx, Reporter(1, "ada@example.org")); err != nil {
				return err
			}
			if err := tx.InsertPatient(ctx, Patient(10, 5001)); err != nil {
				return err
			}
			return tx.InsertDisease(ctx, Disease(100, 1))
		}))
	}

	t.Run("reporter round trip", func(t *testing.T) {
		s := open(t)
		want := Reporter(1, "ada@example.org")
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertReporter(ctx, want)
		}))

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			got, err := tx.GetReporter(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = tx.GetReporter(ctx, 2)
			assert.ErrorIs(t, err, store.ErrNotFound)
			return nil
		}))
	})

	t.Run("unique violations name the field", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertReporter(ctx, Reporter(1, "other@example.org"))
		})
		assert.True(t, store.IsUniqueViolation(err, "id"), "got %v", err)

		err = s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertReporter(ctx, Reporter(2, "ada@example.org"))
		})
		assert.True(t, store.IsUniqueViolation(err, "email"), "got %v", err)

		err = s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertPatient(ctx, Patient(11, 5001))
		})
		assert.True(t, store.IsUniqueViolation(err, "medical_record_number"), "got %v", err)

		err = s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.InsertReporter(ctx, Reporter(2, "b@example.org")); err != nil {
				return err
			}
			other := Reporter(2, "ada@example.org")
			return tx.UpdateReporter(ctx, other)
		})
		assert.True(t, store.IsUniqueViolation(err, "email"), "got %v", err)
	})

	t.Run("foreign keys are enforced", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertDisease(ctx, Disease(101, 99))
		})
		var ce *store.ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, store.ConstraintForeignKey, ce.Kind)
		assert.Equal(t, "created_by", ce.Field)

		err = s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertReport(ctx, &model.Report{
				Status:      model.StatusDraft,
				PatientID:   ptr(int64(77)),
				DateCreated: base,
			})
		})
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, store.ConstraintForeignKey, ce.Kind)
		assert.Equal(t, "patient_id", ce.Field)
	})

	t.Run("nullable columns survive", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		updated := base.Add(time.Hour)
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			p, err := tx.GetPatient(ctx, 10)
			require.NoError(t, err)
			assert.Nil(t, p.EmergencyContact)
			p.EmergencyContact = ptr("Ama Mensah")
			if err := tx.UpdatePatient(ctx, p); err != nil {
				return err
			}

			d, err := tx.GetDisease(ctx, 100)
			require.NoError(t, err)
			assert.Nil(t, d.LabResults)
			assert.Nil(t, d.UpdatedBy)
			d.LabResults = ptr("positive")
			d.UpdatedBy = ptr(int64(1))
			d.DateUpdated = &updated
			return tx.UpdateDisease(ctx, d)
		}))

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			p, err := tx.GetPatient(ctx, 10)
			require.NoError(t, err)
			require.NotNil(t, p.EmergencyContact)
			assert.Equal(t, "Ama Mensah", *p.EmergencyContact)

			d, err := tx.GetDisease(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, "positive", *d.LabResults)
			assert.Equal(t, int64(1), *d.UpdatedBy)
			assert.True(t, updated.Equal(*d.DateUpdated))
			return nil
		}))
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		s := open(t)
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.InsertReporter(ctx, Reporter(1, "ada@example.org")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.GetReporter(ctx, 1)
			assert.ErrorIs(t, err, store.ErrNotFound)
			return nil
		}))
	})

	t.Run("reports are numbered listed and deleted", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		var ids []int64
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			for i := 0; i < 5; i++ {
				r := &model.Report{
					Status:      model.StatusDraft,
					PatientID:   ptr(int64(10)),
					DiseaseID:   ptr(int64(100)),
					ReporterID:  ptr(int64(1)),
					DateCreated: base,
				}
				if err := tx.InsertReport(ctx, r); err != nil {
					return err
				}
				ids = append(ids, r.ID)
			}
			return nil
		}))
		require.Len(t, ids, 5)
		for i := 1; i < len(ids); i++ {
			assert.Greater(t, ids[i], ids[i-1])
		}

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			page, err := tx.ListReports(ctx, 1, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, ids[1], page[0].ID)
			assert.Equal(t, ids[2], page[1].ID)

			page, err = tx.ListReports(ctx, 10, 20)
			require.NoError(t, err)
			assert.Empty(t, page)

			require.NoError(t, tx.DeleteReport(ctx, ids[0]))
			_, err = tx.GetReport(ctx, ids[0])
			assert.ErrorIs(t, err, store.ErrNotFound)
			assert.ErrorIs(t, tx.DeleteReport(ctx, ids[0]), store.ErrNotFound)
			return nil
		}))
	})

	t.Run("missing rows on update", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			assert.ErrorIs(t, tx.UpdateReporter(ctx, Reporter(5, "x@example.org")), store.ErrNotFound)
			assert.ErrorIs(t, tx.UpdatePatient(ctx, Patient(5, 1)), store.ErrNotFound)
			assert.ErrorIs(t, tx.UpdateReport(ctx, &model.Report{ID: 5, Status: model.StatusDraft, DateCreated: base}), store.ErrNotFound)
			return nil
		}))
	})

	t.Run("batched getters skip missing ids", func(t *testing.T) {
		s := open(t)
		seed(t, s)
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			reporters, err := tx.GetReporters(ctx, []int64{1, 2})
			require.NoError(t, err)
			require.Len(t, reporters, 1)
			assert.Equal(t, int64(1), reporters[0].ID)

			patients, err := tx.GetPatients(ctx, []int64{10, 11})
			require.NoError(t, err)
			assert.Len(t, patients, 1)

			diseases, err := tx.GetDiseases(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, diseases)
			return nil
		}))
	})

	t.Run("latest report by status", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		early, late := base.Add(time.Hour), base.Add(2*time.Hour)
		var never, older, newest, tieHigh int64
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			insert := func(status model.ReportStatus, updated *time.Time) int64 {
				r := &model.Report{Status: status, DateCreated: base, DateUpdated: updated}
				require.NoError(t, tx.InsertReport(ctx, r))
				return r.ID
			}
			never = insert(model.StatusSubmitted, nil)
			older = insert(model.StatusSubmitted, &early)
			newest = insert(model.StatusSubmitted, &late)
			tieHigh = insert(model.StatusSubmitted, &late)
			insert(model.StatusDraft, ptr(late.Add(time.Hour)))
			return nil
		}))

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			r, err := tx.LatestReportByStatus(ctx, model.StatusSubmitted)
			require.NoError(t, err)
			assert.Equal(t, tieHigh, r.ID)

			require.NoError(t, tx.DeleteReport(ctx, tieHigh))
			require.NoError(t, tx.DeleteReport(ctx, newest))
			require.NoError(t, tx.DeleteReport(ctx, older))
			r, err = tx.LatestReportByStatus(ctx, model.StatusSubmitted)
			require.NoError(t, err)
			assert.Equal(t, never, r.ID)

			_, err = tx.LatestReportByStatus(ctx, model.StatusApproved)
			assert.ErrorIs(t, err, store.ErrNotFound)
			return nil
		}))
	})

	t.Run("accounts", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertAccount(ctx, &model.Account{ID: 1, Username: "ada", PasswordHash: "hash"})
		}))

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertAccount(ctx, &model.Account{ID: 42, Username: "ghost", PasswordHash: "hash"})
		})
		var ce *store.ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, store.ConstraintForeignKey, ce.Kind)

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			a, err := tx.GetAccountByUsername(ctx, "ada")
			require.NoError(t, err)
			assert.Equal(t, int64(1), a.ID)
			assert.False(t, a.Disabled)

			a.Disabled = true
			require.NoError(t, tx.UpdateAccount(ctx, a))

			a, err = tx.GetAccount(ctx, 1)
			require.NoError(t, err)
			assert.True(t, a.Disabled)

			_, err = tx.GetAccountByUsername(ctx, "nobody")
			assert.ErrorIs(t, err, store.ErrNotFound)
			return nil
		}))
	})
}
