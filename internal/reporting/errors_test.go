package reporting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

func TestTranslate(t *testing.T) {
	driverErr := errors.New("disk I/O error")
	cases := []struct {
		name    string
		in      error
		want    error
		message string
	}{
		{"not found", store.ErrNotFound, ErrNotFound, "patient 3 not found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", store.ErrNotFound), ErrNotFound, "patient 3 not found"},
		{"unique", &store.ConstraintError{Kind: store.ConstraintUnique, Field: "email"}, ErrConstraintViolation, "constraint violation on email"},
		{"foreign key", &store.ConstraintError{Kind: store.ConstraintForeignKey, Field: "disease_id"}, ErrConstraintViolation, "constraint violation on disease_id"},
		{"field", &model.FieldError{Field: "gender", Reason: "unknown value"}, ErrConstraintViolation, "invalid gender: unknown value"},
		{"deadline", context.DeadlineExceeded, ErrStoreFailure, "request cancelled"},
		{"driver", driverErr, ErrStoreFailure, "storage operation failed"},
		{"passthrough", &NotModifiableError{Kind: model.KindReport, ID: 3, Status: model.StatusSubmitted}, ErrNotModifiable, "report 3 cannot be modified in status Submitted"},
		{"inconsistency", ErrDataInconsistency, ErrDataInconsistency, "DB data inconsistency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.in, model.KindPatient, 3)
			require.ErrorIs(t, got, tc.want)
			assert.Equal(t, tc.message, got.Error())
		})
	}

	assert.NoError(t, translate(nil, model.KindPatient, 3))
}

func TestEachErrorMatchesOneSentinel(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrNotModifiable, ErrConstraintViolation, ErrDataInconsistency, ErrStoreFailure}
	errs := []error{
		&NotFoundError{Kind: model.KindReport, ID: 1},
		&NotModifiableError{Kind: model.KindReport, ID: 1, Status: model.StatusApproved},
		&ConstraintViolationError{Field: "email"},
		ErrDataInconsistency,
		&StoreFailureError{Message: "storage operation failed"},
	}
	for i, err := range errs {
		for j, sentinel := range sentinels {
			assert.Equal(t, i == j, errors.Is(err, sentinel), "%v vs %v", err, sentinel)
		}
	}
}

func TestOperationsAreCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	_, err := h.svc.GetReport(ctx, 1)
	require.Error(t, err)
	report := h.createReport(t, model.StatusSubmitted)
	_, err = h.svc.UpdateReport(ctx, alice, report.ID, model.ReportPatch{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OperationCounter("get_report", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OperationCounter("update_report", "not_modifiable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.OperationCounter("upsert_reporter", "ok")))
}

func TestDefaultClockIsUTC(t *testing.T) {
	s := NewService(nil, nil, nil, nil).(*service)
	now := s.now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, now, now.Truncate(time.Microsecond))
}
