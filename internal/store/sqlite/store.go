// Package sqlite implements store.Store on SQLite using the pure Go
// modernc.org/sqlite driver. It backs local runs and the store tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

var _ store.Store = (*Store)(nil)

// Timestamps are stored as fixed-width UTC text so that they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps a single-connection *sql.DB. SQLite serializes writers anyway
// and an in-memory database only exists on the connection that created it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "outbreak.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return store.ErrClosed
		}
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

const reporterColumns = `id, first_name, last_name, email, job_title, phone_number,
	organization_name, organization_address, registration_date`

func scanReporter(row rowScanner) (*model.Reporter, error) {
	var r model.Reporter
	var registered string
	if err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.JobTitle, &r.PhoneNumber,
		&r.OrganizationName, &r.OrganizationAddress, &registered); err != nil {
		return nil, err
	}
	var err error
	if r.RegistrationDate, err = parseTime(registered); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) GetReporter(ctx context.Context, id int64) (*model.Reporter, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+reporterColumns+` FROM reporters WHERE id = ?`, id)
	r, err := scanReporter(row)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (t *tx) GetReporters(ctx context.Context, ids []int64) ([]model.Reporter, error) {
	out := make([]model.Reporter, 0, len(ids))
	err := t.queryIn(ctx, `SELECT `+reporterColumns+` FROM reporters`, ids, func(rows *sql.Rows) error {
		r, err := scanReporter(rows)
		if err != nil {
			return err
		}
		out = append(out, *r)
		return nil
	})
	return out, err
}

func (t *tx) InsertReporter(ctx context.Context, r *model.Reporter) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO reporters (`+reporterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FirstName, r.LastName, r.Email, r.JobTitle, r.PhoneNumber,
		r.OrganizationName, r.OrganizationAddress, formatTime(r.RegistrationDate))
	return mapError(err)
}

func (t *tx) UpdateReporter(ctx context.Context, r *model.Reporter) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE reporters SET first_name = ?, last_name = ?, email = ?,
		job_title = ?, phone_number = ?, organization_name = ?, organization_address = ?,
		registration_date = ? WHERE id = ?`,
		r.FirstName, r.LastName, r.Email, r.JobTitle, r.PhoneNumber, r.OrganizationName,
		r.OrganizationAddress, formatTime(r.RegistrationDate), r.ID)
	return affected(res, err)
}

const patientColumns = `id, first_name, last_name, date_of_birth, gender, medical_record_number,
	patient_address, emergency_contact`

func scanPatient(row rowScanner) (*model.Patient, error) {
	var p model.Patient
	var dob string
	var contact sql.NullString
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &dob, &p.Gender, &p.MedicalRecordNumber,
		&p.PatientAddress, &contact); err != nil {
		return nil, err
	}
	var err error
	if p.DateOfBirth, err = parseTime(dob); err != nil {
		return nil, err
	}
	p.EmergencyContact = fromNullString(contact)
	return &p, nil
}

func (t *tx) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (t *tx) GetPatients(ctx context.Context, ids []int64) ([]model.Patient, error) {
	out := make([]model.Patient, 0, len(ids))
	err := t.queryIn(ctx, `SELECT `+patientColumns+` FROM patients`, ids, func(rows *sql.Rows) error {
		p, err := scanPatient(rows)
		if err != nil {
			return err
		}
		out = append(out, *p)
		return nil
	})
	return out, err
}

func (t *tx) InsertPatient(ctx context.Context, p *model.Patient) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FirstName, p.LastName, formatTime(p.DateOfBirth), p.Gender, p.MedicalRecordNumber,
		p.PatientAddress, p.EmergencyContact)
	return mapError(err)
}

func (t *tx) UpdatePatient(ctx context.Context, p *model.Patient) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE patients SET first_name = ?, last_name = ?,
		date_of_birth = ?, gender = ?, medical_record_number = ?, patient_address = ?,
		emergency_contact = ? WHERE id = ?`,
		p.FirstName, p.LastName, formatTime(p.DateOfBirth), p.Gender, p.MedicalRecordNumber,
		p.PatientAddress, p.EmergencyContact, p.ID)
	return affected(res, err)
}

const diseaseColumns = `id, name, category, date_detected, symptoms, severity_level, lab_results,
	treatment_status, date_created, created_by, date_updated, updated_by`

func scanDisease(row rowScanner) (*model.Disease, error) {
	var d model.Disease
	var detected, created string
	var labResults, updated sql.NullString
	var updatedBy sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.Category, &detected, &d.Symptoms, &d.SeverityLevel,
		&labResults, &d.TreatmentStatus, &created, &d.CreatedBy, &updated, &updatedBy); err != nil {
		return nil, err
	}
	var err error
	if d.DateDetected, err = parseTime(detected); err != nil {
		return nil, err
	}
	if d.DateCreated, err = parseTime(created); err != nil {
		return nil, err
	}
	if d.DateUpdated, err = parseNullTime(updated); err != nil {
		return nil, err
	}
	d.LabResults = fromNullString(labResults)
	d.UpdatedBy = fromNullInt64(updatedBy)
	return &d, nil
}

func (t *tx) GetDisease(ctx context.Context, id int64) (*model.Disease, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+diseaseColumns+` FROM diseases WHERE id = ?`, id)
	d, err := scanDisease(row)
	if err != nil {
		return nil, mapError(err)
	}
	return d, nil
}

func (t *tx) GetDiseases(ctx context.Context, ids []int64) ([]model.Disease, error) {
	out := make([]model.Disease, 0, len(ids))
	err := t.queryIn(ctx, `SELECT `+diseaseColumns+` FROM diseases`, ids, func(rows *sql.Rows) error {
		d, err := scanDisease(rows)
		if err != nil {
			return err
		}
		out = append(out, *d)
		return nil
	})
	return out, err
}

func (t *tx) InsertDisease(ctx context.Context, d *model.Disease) error {
	if err := t.checkRefs(ctx, ref{"created_by", "reporters", &d.CreatedBy}, ref{"updated_by", "reporters", d.UpdatedBy}); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO diseases (`+diseaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Category, formatTime(d.DateDetected), d.Symptoms, d.SeverityLevel, d.LabResults,
		d.TreatmentStatus, formatTime(d.DateCreated), d.CreatedBy, formatNullTime(d.DateUpdated), d.UpdatedBy)
	return mapError(err)
}

func (t *tx) UpdateDisease(ctx context.Context, d *model.Disease) error {
	if err := t.checkRefs(ctx, ref{"created_by", "reporters", &d.CreatedBy}, ref{"updated_by", "reporters", d.UpdatedBy}); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE diseases SET name = ?, category = ?, date_detected = ?,
		symptoms = ?, severity_level = ?, lab_results = ?, treatment_status = ?, date_created = ?,
		created_by = ?, date_updated = ?, updated_by = ? WHERE id = ?`,
		d.Name, d.Category, formatTime(d.DateDetected), d.Symptoms, d.SeverityLevel, d.LabResults,
		d.TreatmentStatus, formatTime(d.DateCreated), d.CreatedBy, formatNullTime(d.DateUpdated),
		d.UpdatedBy, d.ID)
	return affected(res, err)
}

const reportColumns = `id, status, patient_id, disease_id, reporter_id, updated_by, date_created, date_updated`

func scanReport(row rowScanner) (*model.Report, error) {
	var r model.Report
	var patientID, diseaseID, reporterID, updatedBy sql.NullInt64
	var created string
	var updated sql.NullString
	if err := row.Scan(&r.ID, &r.Status, &patientID, &diseaseID, &reporterID, &updatedBy,
		&created, &updated); err != nil {
		return nil, err
	}
	var err error
	if r.DateCreated, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.DateUpdated, err = parseNullTime(updated); err != nil {
		return nil, err
	}
	r.PatientID = fromNullInt64(patientID)
	r.DiseaseID = fromNullInt64(diseaseID)
	r.ReporterID = fromNullInt64(reporterID)
	r.UpdatedBy = fromNullInt64(updatedBy)
	return &r, nil
}

func (t *tx) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (t *tx) reportRefs(r *model.Report) []ref {
	return []ref{
		{"patient_id", "patients", r.PatientID},
		{"disease_id", "diseases", r.DiseaseID},
		{"reporter_id", "reporters", r.ReporterID},
		{"updated_by", "reporters", r.UpdatedBy},
	}
}

func (t *tx) InsertReport(ctx context.Context, r *model.Report) error {
	if err := t.checkRefs(ctx, t.reportRefs(r)...); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO reports (status, patient_id, disease_id, reporter_id,
		updated_by, date_created, date_updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Status, r.PatientID, r.DiseaseID, r.ReporterID, r.UpdatedBy,
		formatTime(r.DateCreated), formatNullTime(r.DateUpdated))
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

func (t *tx) UpdateReport(ctx context.Context, r *model.Report) error {
	if err := t.checkRefs(ctx, t.reportRefs(r)...); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE reports SET status = ?, patient_id = ?, disease_id = ?,
		reporter_id = ?, updated_by = ?, date_created = ?, date_updated = ? WHERE id = ?`,
		r.Status, r.PatientID, r.DiseaseID, r.ReporterID, r.UpdatedBy,
		formatTime(r.DateCreated), formatNullTime(r.DateUpdated), r.ID)
	return affected(res, err)
}

func (t *tx) DeleteReport(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	return affected(res, err)
}

func (t *tx) ListReports(ctx context.Context, offset, limit int) ([]model.Report, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []model.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *tx) LatestReportByStatus(ctx context.Context, status model.ReportStatus) (*model.Report, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE status = ?
		ORDER BY date_updated IS NULL, date_updated DESC, id DESC LIMIT 1`, status)
	r, err := scanReport(row)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

const accountColumns = `id, username, password_hash, disabled`

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Disabled); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (t *tx) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a *model.Account) error {
	if err := t.checkRefs(ctx, ref{"id", "reporters", &a.ID}); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?)`,
		a.ID, a.Username, a.PasswordHash, a.Disabled)
	return mapError(err)
}

func (t *tx) UpdateAccount(ctx context.Context, a *model.Account) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET username = ?, password_hash = ?, disabled = ? WHERE id = ?`,
		a.Username, a.PasswordHash, a.Disabled, a.ID)
	return affected(res, err)
}

func (t *tx) queryIn(ctx context.Context, query string, ids []int64, scan func(*sql.Rows) error) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := t.tx.QueryContext(ctx, query+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ref is a nullable foreign key column checked before a write. SQLite only
// reports "FOREIGN KEY constraint failed" without naming the column.
type ref struct {
	field string
	table string
	id    *int64
}

func (t *tx) checkRefs(ctx context.Context, refs ...ref) error {
	for _, r := range refs {
		if r.id == nil {
			continue
		}
		var one int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM `+r.table+` WHERE id = ?`, *r.id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &store.ConstraintError{Kind: store.ConstraintForeignKey, Field: r.field}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var constraintColumn = regexp.MustCompile(`constraint failed: \w+\.(\w+)`)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	// The low byte is the primary result code whether or not extended codes
	// are enabled on the connection.
	if sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY"):
		return &store.ConstraintError{Kind: store.ConstraintForeignKey, Field: "reference", Err: err}
	case strings.Contains(msg, "UNIQUE"):
		field := "id"
		if m := constraintColumn.FindStringSubmatch(msg); m != nil {
			field = m[1]
		}
		return &store.ConstraintError{Kind: store.ConstraintUnique, Field: field, Err: err}
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func fromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
