package reporting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesikahq/outbreak-exchange/internal/model"
)

func TestCreateReportStampsOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	report, err := h.svc.CreateReport(ctx, bob, reportPatch(model.StatusDraft, ptr(int64(10)), nil))
	require.NoError(t, err)
	assert.NotZero(t, report.ID)
	require.NotNil(t, report.ReporterID)
	assert.Equal(t, bob.ID, *report.ReporterID)
	assert.Nil(t, report.DiseaseID)
	assert.Nil(t, report.DateUpdated)
	assert.False(t, report.DateCreated.IsZero())
}

func TestCreateReportValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	_, err := h.svc.CreateReport(ctx, alice, model.ReportPatch{})
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "status", cv.Field)

	_, err = h.svc.CreateReport(ctx, alice, reportPatch("Closed", nil, nil))
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "status", cv.Field)

	_, err = h.svc.CreateReport(ctx, alice, reportPatch(model.StatusDraft, ptr(int64(404)), nil))
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "patient_id", cv.Field)

	_, err = h.svc.CreateReport(ctx, model.Principal{ID: 77, Username: "ghost"}, reportPatch(model.StatusDraft, nil, nil))
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "reporter_id", cv.Field)
}

func TestUpdateDraftThenLocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)
	report := h.createReport(t, model.StatusDraft)

	updated, err := h.svc.UpdateReport(ctx, bob, report.ID, model.ReportPatch{DiseaseID: model.Some[*int64](nil)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, updated.Status)
	assert.Nil(t, updated.DiseaseID)
	require.NotNil(t, updated.PatientID)
	assert.Equal(t, int64(10), *updated.PatientID)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, bob.ID, *updated.UpdatedBy)
	require.NotNil(t, updated.DateUpdated)
	assert.Equal(t, alice.ID, *updated.ReporterID)

	approved, err := h.svc.UpdateReport(ctx, alice, report.ID, model.ReportPatch{Status: model.Some(model.StatusApproved)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	_, err = h.svc.UpdateReport(ctx, alice, report.ID, model.ReportPatch{Status: model.Some(model.StatusDraft)})
	require.ErrorIs(t, err, ErrNotModifiable)
	assert.Equal(t, "report 1 cannot be modified in status Approved", err.Error())
}

func TestNonDraftReportsAreLocked(t *testing.T) {
	for _, status := range []model.ReportStatus{model.StatusSubmitted, model.StatusUnderReview, model.StatusApproved} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.seed(t)
			report := h.createReport(t, status)

			_, err := h.svc.UpdateReport(ctx, alice, report.ID, model.ReportPatch{PatientID: model.Some[*int64](nil)})
			var nm *NotModifiableError
			require.ErrorAs(t, err, &nm)
			assert.Equal(t, status, nm.Status)

			err = h.svc.DeleteReport(ctx, alice, report.ID)
			require.ErrorIs(t, err, ErrNotModifiable)

			view, err := h.svc.GetReport(ctx, report.ID)
			require.NoError(t, err)
			assert.Equal(t, status, view.Status)
			require.NotNil(t, view.PatientID)
		})
	}
}

func TestUpdateReportUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.UpdateReport(context.Background(), alice, 42, model.ReportPatch{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "report 42 not found", err.Error())
}

func TestUpdateReportRejectsUnknownReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)
	report := h.createReport(t, model.StatusDraft)

	_, err := h.svc.UpdateReport(ctx, alice, report.ID, model.ReportPatch{DiseaseID: model.Some(ptr(int64(999)))})
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "disease_id", cv.Field)

	view, err := h.svc.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), *view.DiseaseID)
}

func TestDeleteDraftReport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)
	report := h.createReport(t, model.StatusDraft)

	require.NoError(t, h.svc.DeleteReport(ctx, bob, report.ID))

	_, err := h.svc.GetReport(ctx, report.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = h.svc.DeleteReport(ctx, bob, report.ID)
	require.ErrorIs(t, err, ErrNotFound)

	history, err := h.svc.GetHistory(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "DELETE", history[0].Action)
	assert.Equal(t, "bob", history[0].Username)
	assert.Equal(t, "CREATE", history[1].Action)
}

func TestHistoryOfUnknownReportIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	_, err := h.svc.GetHistory(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "report 42 not found")
}

func TestHistoryOfReportWithLostTrailIsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	report := h.createReport(t, model.StatusDraft)

	// The sibling service has its own empty audit trail.
	history, err := h.sibling(t, testKey).GetHistory(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeletedReportIdsAreNotReused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t)

	first := h.createReport(t, model.StatusDraft)
	require.NoError(t, h.svc.DeleteReport(ctx, alice, first.ID))
	second := h.createReport(t, model.StatusDraft)
	assert.Greater(t, second.ID, first.ID)
}
