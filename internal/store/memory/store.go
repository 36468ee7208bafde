// Package memory implements store.Store in process memory. Each transaction
// works on a private copy of the state that replaces the shared state on
// commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

var _ store.Store = (*Store)(nil)

type state struct {
	reporters    map[int64]model.Reporter
	patients     map[int64]model.Patient
	diseases     map[int64]model.Disease
	reports      map[int64]model.Report
	accounts     map[int64]model.Account
	nextReportID int64
}

func newState() state {
	return state{
		reporters:    make(map[int64]model.Reporter),
		patients:     make(map[int64]model.Patient),
		diseases:     make(map[int64]model.Disease),
		reports:      make(map[int64]model.Report),
		accounts:     make(map[int64]model.Account),
		nextReportID: 1,
	}
}

func (s state) clone() state {
	out := state{
		reporters:    make(map[int64]model.Reporter, len(s.reporters)),
		patients:     make(map[int64]model.Patient, len(s.patients)),
		diseases:     make(map[int64]model.Disease, len(s.diseases)),
		reports:      make(map[int64]model.Report, len(s.reports)),
		accounts:     make(map[int64]model.Account, len(s.accounts)),
		nextReportID: s.nextReportID,
	}
	for id, r := range s.reporters {
		out.reporters[id] = r
	}
	for id, p := range s.patients {
		out.patients[id] = clonePatient(p)
	}
	for id, d := range s.diseases {
		out.diseases[id] = cloneDisease(d)
	}
	for id, r := range s.reports {
		out.reports[id] = cloneReport(r)
	}
	for id, a := range s.accounts {
		out.accounts[id] = a
	}
	return out
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu     sync.Mutex
	state  state
	closed bool
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{state: s.state.clone()}
	if err := fn(t); err != nil {
		return err
	}
	s.state = t.state
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	state state
}

func (t *tx) GetReporter(_ context.Context, id int64) (*model.Reporter, error) {
	r, ok := t.state.reporters[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (t *tx) GetReporters(_ context.Context, ids []int64) ([]model.Reporter, error) {
	out := make([]model.Reporter, 0, len(ids))
	for _, id := range ids {
		if r, ok := t.state.reporters[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) InsertReporter(_ context.Context, r *model.Reporter) error {
	if _, ok := t.state.reporters[r.ID]; ok {
		return unique("id")
	}
	if err := t.checkReporterEmail(r); err != nil {
		return err
	}
	t.state.reporters[r.ID] = *r
	return nil
}

func (t *tx) UpdateReporter(_ context.Context, r *model.Reporter) error {
	if _, ok := t.state.reporters[r.ID]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkReporterEmail(r); err != nil {
		return err
	}
	t.state.reporters[r.ID] = *r
	return nil
}

func (t *tx) checkReporterEmail(r *model.Reporter) error {
	for id, other := range t.state.reporters {
		if id != r.ID && other.Email == r.Email {
			return unique("email")
		}
	}
	return nil
}

func (t *tx) GetPatient(_ context.Context, id int64) (*model.Patient, error) {
	p, ok := t.state.patients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = clonePatient(p)
	return &p, nil
}

func (t *tx) GetPatients(_ context.Context, ids []int64) ([]model.Patient, error) {
	out := make([]model.Patient, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.state.patients[id]; ok {
			out = append(out, clonePatient(p))
		}
	}
	return out, nil
}

func (t *tx) InsertPatient(_ context.Context, p *model.Patient) error {
	if _, ok := t.state.patients[p.ID]; ok {
		return unique("id")
	}
	if err := t.checkMedicalRecordNumber(p); err != nil {
		return err
	}
	t.state.patients[p.ID] = storedPatient(p)
	return nil
}

func (t *tx) UpdatePatient(_ context.Context, p *model.Patient) error {
	if _, ok := t.state.patients[p.ID]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkMedicalRecordNumber(p); err != nil {
		return err
	}
	t.state.patients[p.ID] = storedPatient(p)
	return nil
}

func (t *tx) checkMedicalRecordNumber(p *model.Patient) error {
	for id, other := range t.state.patients {
		if id != p.ID && other.MedicalRecordNumber == p.MedicalRecordNumber {
			return unique("medical_record_number")
		}
	}
	return nil
}

func (t *tx) GetDisease(_ context.Context, id int64) (*model.Disease, error) {
	d, ok := t.state.diseases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	d = cloneDisease(d)
	return &d, nil
}

func (t *tx) GetDiseases(_ context.Context, ids []int64) ([]model.Disease, error) {
	out := make([]model.Disease, 0, len(ids))
	for _, id := range ids {
		if d, ok := t.state.diseases[id]; ok {
			out = append(out, cloneDisease(d))
		}
	}
	return out, nil
}

func (t *tx) InsertDisease(_ context.Context, d *model.Disease) error {
	if _, ok := t.state.diseases[d.ID]; ok {
		return unique("id")
	}
	if err := t.checkDiseaseRefs(d); err != nil {
		return err
	}
	t.state.diseases[d.ID] = cloneDisease(*d)
	return nil
}

func (t *tx) UpdateDisease(_ context.Context, d *model.Disease) error {
	if _, ok := t.state.diseases[d.ID]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkDiseaseRefs(d); err != nil {
		return err
	}
	t.state.diseases[d.ID] = cloneDisease(*d)
	return nil
}

func (t *tx) checkDiseaseRefs(d *model.Disease) error {
	if !t.reporterExists(&d.CreatedBy) {
		return foreignKey("created_by")
	}
	if !t.reporterExists(d.UpdatedBy) {
		return foreignKey("updated_by")
	}
	return nil
}

func (t *tx) GetReport(_ context.Context, id int64) (*model.Report, error) {
	r, ok := t.state.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = cloneReport(r)
	return &r, nil
}

func (t *tx) InsertReport(_ context.Context, r *model.Report) error {
	if err := t.checkReportRefs(r); err != nil {
		return err
	}
	r.ID = t.state.nextReportID
	t.state.nextReportID++
	t.state.reports[r.ID] = cloneReport(*r)
	return nil
}

func (t *tx) UpdateReport(_ context.Context, r *model.Report) error {
	if _, ok := t.state.reports[r.ID]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkReportRefs(r); err != nil {
		return err
	}
	t.state.reports[r.ID] = cloneReport(*r)
	return nil
}

func (t *tx) DeleteReport(_ context.Context, id int64) error {
	if _, ok := t.state.reports[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.state.reports, id)
	return nil
}

func (t *tx) ListReports(_ context.Context, offset, limit int) ([]model.Report, error) {
	ids := make([]int64, 0, len(t.state.reports))
	for id := range t.state.reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if offset >= len(ids) {
		return []model.Report{}, nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}

	out := make([]model.Report, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneReport(t.state.reports[id]))
	}
	return out, nil
}

func (t *tx) LatestReportByStatus(_ context.Context, status model.ReportStatus) (*model.Report, error) {
	var best *model.Report
	for _, r := range t.state.reports {
		if r.Status != status {
			continue
		}
		if best == nil || newer(r, *best) {
			c := cloneReport(r)
			best = &c
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

// newer orders by date_updated descending, nulls last, then id descending.
func newer(a, b model.Report) bool {
	switch {
	case a.DateUpdated != nil && b.DateUpdated == nil:
		return true
	case a.DateUpdated == nil && b.DateUpdated != nil:
		return false
	case a.DateUpdated != nil && !a.DateUpdated.Equal(*b.DateUpdated):
		return a.DateUpdated.After(*b.DateUpdated)
	}
	return a.ID > b.ID
}

func (t *tx) checkReportRefs(r *model.Report) error {
	if r.PatientID != nil {
		if _, ok := t.state.patients[*r.PatientID]; !ok {
			return foreignKey("patient_id")
		}
	}
	if r.DiseaseID != nil {
		if _, ok := t.state.diseases[*r.DiseaseID]; !ok {
			return foreignKey("disease_id")
		}
	}
	if !t.reporterExists(r.ReporterID) {
		return foreignKey("reporter_id")
	}
	if !t.reporterExists(r.UpdatedBy) {
		return foreignKey("updated_by")
	}
	return nil
}

func (t *tx) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *tx) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	for _, a := range t.state.accounts {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) InsertAccount(_ context.Context, a *model.Account) error {
	if _, ok := t.state.accounts[a.ID]; ok {
		return unique("id")
	}
	if _, ok := t.state.reporters[a.ID]; !ok {
		return foreignKey("id")
	}
	if err := t.checkUsername(a); err != nil {
		return err
	}
	t.state.accounts[a.ID] = *a
	return nil
}

func (t *tx) UpdateAccount(_ context.Context, a *model.Account) error {
	if _, ok := t.state.accounts[a.ID]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkUsername(a); err != nil {
		return err
	}
	t.state.accounts[a.ID] = *a
	return nil
}

func (t *tx) checkUsername(a *model.Account) error {
	for id, other := range t.state.accounts {
		if id != a.ID && other.Username == a.Username {
			return unique("username")
		}
	}
	return nil
}

func (t *tx) reporterExists(id *int64) bool {
	if id == nil {
		return true
	}
	_, ok := t.state.reporters[*id]
	return ok
}

func unique(field string) error {
	return &store.ConstraintError{Kind: store.ConstraintUnique, Field: field}
}

func foreignKey(field string) error {
	return &store.ConstraintError{Kind: store.ConstraintForeignKey, Field: field}
}

// storedPatient drops the derived age so it is never persisted.
func storedPatient(p *model.Patient) model.Patient {
	c := clonePatient(*p)
	c.Age = 0
	return c
}

func clonePatient(p model.Patient) model.Patient {
	p.EmergencyContact = cloneString(p.EmergencyContact)
	return p
}

func cloneDisease(d model.Disease) model.Disease {
	d.LabResults = cloneString(d.LabResults)
	d.DateUpdated = cloneTime(d.DateUpdated)
	d.UpdatedBy = cloneID(d.UpdatedBy)
	return d
}

func cloneReport(r model.Report) model.Report {
	r.PatientID = cloneID(r.PatientID)
	r.DiseaseID = cloneID(r.DiseaseID)
	r.ReporterID = cloneID(r.ReporterID)
	r.UpdatedBy = cloneID(r.UpdatedBy)
	r.DateUpdated = cloneTime(r.DateUpdated)
	return r
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
