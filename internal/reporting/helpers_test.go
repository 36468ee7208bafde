package reporting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/encryption"
	"github.com/mesikahq/outbreak-exchange/internal/metrics"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
	"github.com/mesikahq/outbreak-exchange/internal/store/memory"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var (
	testStart = time.Date(2025, 9, 10, 9, 0, 0, 0, time.UTC)
	alice     = model.Principal{ID: 1, Username: "alice"}
	bob       = model.Principal{ID: 2, Username: "bob"}
)

// fakeClock advances by one second on every read so stamps are distinct.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	svc     Service
	store   store.Store
	audit   audit.Service
	metrics *metrics.Metrics
	clock   *fakeClock
}

func newHarness(t *testing.T, wrap ...func(store.Store) store.Store) *harness {
	t.Helper()

	var st store.Store = memory.NewStore()
	for _, w := range wrap {
		st = w(st)
	}
	enc, err := encryption.NewService(testKey)
	require.NoError(t, err)

	h := &harness{
		store:   st,
		audit:   audit.NewMemoryService(),
		metrics: metrics.New(),
		clock:   &fakeClock{now: testStart},
	}
	h.svc = NewService(st, enc, h.audit, zap.NewNop(), WithClock(h.clock.Now), WithMetrics(h.metrics))
	return h
}

// sibling builds a second service over the same store, as another process
// configured with key would.
func (h *harness) sibling(t *testing.T, key string) Service {
	t.Helper()
	enc, err := encryption.NewService(key)
	require.NoError(t, err)
	return NewService(h.store, enc, audit.NewMemoryService(), zap.NewNop(), WithClock(h.clock.Now))
}

func ptr[T any](v T) *T { return &v }

func reporterPatch(email string) model.ReporterPatch {
	return model.ReporterPatch{
		FirstName:           model.Some("Ama"),
		LastName:            model.Some("Boateng"),
		Email:               model.Some(email),
		JobTitle:            model.Some("Disease Surveillance Officer"),
		PhoneNumber:         model.Some("+233 24 123 4567"),
		OrganizationName:    model.Some("Ghana Health Service"),
		OrganizationAddress: model.Some("Ministries, Accra"),
	}
}

func patientPatch(mrn int64) model.PatientPatch {
	return model.PatientPatch{
		FirstName:           model.Some("Kwame"),
		LastName:            model.Some("Asante"),
		DateOfBirth:         model.Some(time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC)),
		Gender:              model.Some(model.GenderMale),
		MedicalRecordNumber: model.Some(mrn),
		PatientAddress:      model.Some("4 Castle Road, Kumasi"),
		EmergencyContact:    model.Some(ptr("Akosua Asante, +233 20 765 4321")),
	}
}

func diseasePatch(detected time.Time) model.DiseasePatch {
	return model.DiseasePatch{
		Name:            model.Some("Cholera"),
		Category:        model.Some(model.CategoryBacterial),
		DateDetected:    model.Some(detected),
		Symptoms:        model.Some("acute watery diarrhoea"),
		SeverityLevel:   model.Some(model.SeverityHigh),
		TreatmentStatus: model.Some(model.TreatmentOngoing),
	}
}

func reportPatch(status model.ReportStatus, patientID, diseaseID *int64) model.ReportPatch {
	return model.ReportPatch{
		Status:    model.Some(status),
		PatientID: model.Some(patientID),
		DiseaseID: model.Some(diseaseID),
	}
}

// seed stores reporters 1 and 2, patient 10 and disease 100.
func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := h.svc.UpsertReporter(ctx, alice, alice.ID, reporterPatch("alice@example.org"))
	require.NoError(t, err)
	_, err = h.svc.UpsertReporter(ctx, bob, bob.ID, reporterPatch("bob@example.org"))
	require.NoError(t, err)
	_, err = h.svc.UpsertPatient(ctx, alice, 10, patientPatch(7001))
	require.NoError(t, err)
	_, err = h.svc.UpsertDisease(ctx, alice, 100, diseasePatch(testStart.Add(-72*time.Hour)))
	require.NoError(t, err)
}

func (h *harness) createReport(t *testing.T, status model.ReportStatus) *model.Report {
	t.Helper()
	report, err := h.svc.CreateReport(context.Background(), alice, reportPatch(status, ptr(int64(10)), ptr(int64(100))))
	require.NoError(t, err)
	return report
}

// hidingStore drops selected diseases from batched lookups, as if the rows
// vanished underneath the report that references them.
type hidingStore struct {
	store.Store
	diseases map[int64]bool
}

func (s *hidingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&hidingTx{Tx: tx, hidden: s.diseases})
	})
}

type hidingTx struct {
	store.Tx
	hidden map[int64]bool
}

func (t *hidingTx) GetDiseases(ctx context.Context, ids []int64) ([]model.Disease, error) {
	all, err := t.Tx.GetDiseases(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if !t.hidden[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

// racingStore makes the first reporter insert lose to a competing writer. The
// competitor's row is committed after the losing transaction rolls back.
type racingStore struct {
	store.Store
	competitor *model.Reporter
	raced      bool
	pending    *model.Reporter
}

func (s *racingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&racingTx{Tx: tx, s: s})
	})
	if s.pending != nil {
		winner := s.pending
		s.pending = nil
		if err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertReporter(ctx, winner)
		}); err != nil {
			return err
		}
	}
	return err
}

type racingTx struct {
	store.Tx
	s *racingStore
}

func (t *racingTx) InsertReporter(ctx context.Context, r *model.Reporter) error {
	if !t.s.raced && t.s.competitor != nil && r.ID == t.s.competitor.ID {
		t.s.raced = true
		t.s.pending = t.s.competitor
		return &store.ConstraintError{Kind: store.ConstraintUnique, Field: "id"}
	}
	return t.Tx.InsertReporter(ctx, r)
}

// failingStore fails every transaction with a driver-like error.
type failingStore struct {
	store.Store
	err error
}

func (s *failingStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return s.err
}
