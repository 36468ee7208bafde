// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	pool *pgxpool.Pool
}

// New wraps an established pool. Closing the store closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgxTx pgx.Tx) error {
		return fn(&tx{tx: pgxTx})
	})
}

type tx struct {
	tx pgx.Tx
}

const reporterColumns = `id, first_name, last_name, email, job_title, phone_number,
	organization_name, organization_address, registration_date`

func scanReporter(row pgx.Row) (*model.Reporter, error) {
	var r model.Reporter
	err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.JobTitle, &r.PhoneNumber,
		&r.OrganizationName, &r.OrganizationAddress, &r.RegistrationDate)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) GetReporter(ctx context.Context, id int64) (*model.Reporter, error) {
	r, err := scanReporter(t.tx.QueryRow(ctx, `SELECT `+reporterColumns+` FROM reporters WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (t *tx) GetReporters(ctx context.Context, ids []int64) ([]model.Reporter, error) {
	out := make([]model.Reporter, 0, len(ids))
	err := t.queryAny(ctx, `SELECT `+reporterColumns+` FROM reporters WHERE id = ANY($1)`, ids, func(rows pgx.Rows) error {
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
	_, err := t.tx.Exec(ctx, `INSERT INTO reporters (`+reporterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.FirstName, r.LastName, r.Email, r.JobTitle, r.PhoneNumber,
		r.OrganizationName, r.OrganizationAddress, r.RegistrationDate)
	return mapError(err)
}

func (t *tx) UpdateReporter(ctx context.Context, r *model.Reporter) error {
	tag, err := t.tx.Exec(ctx, `UPDATE reporters SET first_name = $1, last_name = $2, email = $3,
		job_title = $4, phone_number = $5, organization_name = $6, organization_address = $7,
		registration_date = $8 WHERE id = $9`,
		r.FirstName, r.LastName, r.Email, r.JobTitle, r.PhoneNumber, r.OrganizationName,
		r.OrganizationAddress, r.RegistrationDate, r.ID)
	return affected(tag, err)
}

const patientColumns = `id, first_name, last_name, date_of_birth, gender, medical_record_number,
	patient_address, emergency_contact`

func scanPatient(row pgx.Row) (*model.Patient, error) {
	var p model.Patient
	var gender string
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &gender, &p.MedicalRecordNumber,
		&p.PatientAddress, &p.EmergencyContact)
	if err != nil {
		return nil, err
	}
	p.Gender = model.Gender(gender)
	return &p, nil
}

func (t *tx) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	p, err := scanPatient(t.tx.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (t *tx) GetPatients(ctx context.Context, ids []int64) ([]model.Patient, error) {
	out := make([]model.Patient, 0, len(ids))
	err := t.queryAny(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ANY($1)`, ids, func(rows pgx.Rows) error {
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
	_, err := t.tx.Exec(ctx, `INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, string(p.Gender), p.MedicalRecordNumber,
		p.PatientAddress, p.EmergencyContact)
	return mapError(err)
}

func (t *tx) UpdatePatient(ctx context.Context, p *model.Patient) error {
	tag, err := t.tx.Exec(ctx, `UPDATE patients SET first_name = $1, last_name = $2,
		date_of_birth = $3, gender = $4, medical_record_number = $5, patient_address = $6,
		emergency_contact = $7 WHERE id = $8`,
		p.FirstName, p.LastName, p.DateOfBirth, string(p.Gender), p.MedicalRecordNumber,
		p.PatientAddress, p.EmergencyContact, p.ID)
	return affected(tag, err)
}

const diseaseColumns = `id, name, category, date_detected, symptoms, severity_level, lab_results,
	treatment_status, date_created, created_by, date_updated, updated_by`

func scanDisease(row pgx.Row) (*model.Disease, error) {
	var d model.Disease
	var category, severity, treatment string
	err := row.Scan(&d.ID, &d.Name, &category, &d.DateDetected, &d.Symptoms, &severity,
		&d.LabResults, &treatment, &d.DateCreated, &d.CreatedBy, &d.DateUpdated, &d.UpdatedBy)
	if err != nil {
		return nil, err
	}
	d.Category = model.DiseaseCategory(category)
	d.SeverityLevel = model.SeverityLevel(severity)
	d.TreatmentStatus = model.TreatmentStatus(treatment)
	return &d, nil
}

func (t *tx) GetDisease(ctx context.Context, id int64) (*model.Disease, error) {
	d, err := scanDisease(t.tx.QueryRow(ctx, `SELECT `+diseaseColumns+` FROM diseases WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return d, nil
}

func (t *tx) GetDiseases(ctx context.Context, ids []int64) ([]model.Disease, error) {
	out := make([]model.Disease, 0, len(ids))
	err := t.queryAny(ctx, `SELECT `+diseaseColumns+` FROM diseases WHERE id = ANY($1)`, ids, func(rows pgx.Rows) error {
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
	_, err := t.tx.Exec(ctx, `INSERT INTO diseases (`+diseaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.Name, string(d.Category), d.DateDetected, d.Symptoms, string(d.SeverityLevel), d.LabResults,
		string(d.TreatmentStatus), d.DateCreated, d.CreatedBy, d.DateUpdated, d.UpdatedBy)
	return mapError(err)
}

func (t *tx) UpdateDisease(ctx context.Context, d *model.Disease) error {
	tag, err := t.tx.Exec(ctx, `UPDATE diseases SET name = $1, category = $2, date_detected = $3,
		symptoms = $4, severity_level = $5, lab_results = $6, treatment_status = $7, date_created = $8,
		created_by = $9, date_updated = $10, updated_by = $11 WHERE id = $12`,
		d.Name, string(d.Category), d.DateDetected, d.Symptoms, string(d.SeverityLevel), d.LabResults,
		string(d.TreatmentStatus), d.DateCreated, d.CreatedBy, d.DateUpdated, d.UpdatedBy, d.ID)
	return affected(tag, err)
}

const reportColumns = `id, status, patient_id, disease_id, reporter_id, updated_by, date_created, date_updated`

func scanReport(row pgx.Row) (*model.Report, error) {
	var r model.Report
	var status string
	err := row.Scan(&r.ID, &status, &r.PatientID, &r.DiseaseID, &r.ReporterID, &r.UpdatedBy,
		&r.DateCreated, &r.DateUpdated)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	return &r, nil
}

func (t *tx) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	r, err := scanReport(t.tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (t *tx) InsertReport(ctx context.Context, r *model.Report) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO reports (status, patient_id, disease_id, reporter_id,
		updated_by, date_created, date_updated) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		string(r.Status), r.PatientID, r.DiseaseID, r.ReporterID, r.UpdatedBy, r.DateCreated, r.DateUpdated,
	).Scan(&r.ID)
	return mapError(err)
}

func (t *tx) UpdateReport(ctx context.Context, r *model.Report) error {
	tag, err := t.tx.Exec(ctx, `UPDATE reports SET status = $1, patient_id = $2, disease_id = $3,
		reporter_id = $4, updated_by = $5, date_created = $6, date_updated = $7 WHERE id = $8`,
		string(r.Status), r.PatientID, r.DiseaseID, r.ReporterID, r.UpdatedBy, r.DateCreated,
		r.DateUpdated, r.ID)
	return affected(tag, err)
}

func (t *tx) DeleteReport(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	return affected(tag, err)
}

func (t *tx) ListReports(ctx context.Context, offset, limit int) ([]model.Report, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY id LIMIT $1 OFFSET $2`,
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
	r, err := scanReport(t.tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE status = $1
		ORDER BY date_updated DESC NULLS LAST, id DESC LIMIT 1`, string(status)))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

const accountColumns = `id, username, password_hash, disabled`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Disabled); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (t *tx) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a *model.Account) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Username, a.PasswordHash, a.Disabled)
	return mapError(err)
}

func (t *tx) UpdateAccount(ctx context.Context, a *model.Account) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET username = $1, password_hash = $2, disabled = $3 WHERE id = $4`,
		a.Username, a.PasswordHash, a.Disabled, a.ID)
	return affected(tag, err)
}

func (t *tx) queryAny(ctx context.Context, query string, ids []int64, scan func(pgx.Rows) error) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := t.tx.Query(ctx, query, ids)
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

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return &store.ConstraintError{
			Kind:  store.ConstraintUnique,
			Field: constraintField(pgErr.TableName, pgErr.ConstraintName),
			Err:   err,
		}
	case codeForeignKeyViolation:
		return &store.ConstraintError{
			Kind:  store.ConstraintForeignKey,
			Field: constraintField(pgErr.TableName, pgErr.ConstraintName),
			Err:   err,
		}
	}
	return err
}

// constraintField recovers the column from names such as reporters_email_key,
// reports_disease_id_fkey or patients_pkey.
func constraintField(table, constraint string) string {
	if strings.HasSuffix(constraint, "_pkey") {
		return "id"
	}
	field := strings.TrimPrefix(constraint, table+"_")
	field = strings.TrimSuffix(field, "_fkey")
	field = strings.TrimSuffix(field, "_key")
	if field == "" {
		return constraint
	}
	return field
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

