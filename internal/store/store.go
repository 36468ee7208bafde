// Package store defines the persistence contract for reporters, patients,
// diseases, reports and accounts. Backends live in the sub-packages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesikahq/outbreak-exchange/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("store closed")
)

type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ConstraintError reports a rejected write. Field names the offending column
// using its wire name, for example "email" or "id".
type ConstraintError struct {
	Kind  ConstraintKind
	Field string
	Err   error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s constraint violated on %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s constraint violated on %s", e.Kind, e.Field)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsUniqueViolation reports whether err is a uniqueness violation on field.
func IsUniqueViolation(err error, field string) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Kind == ConstraintUnique && ce.Field == field
}

// Store hands out transactions. Implementations commit when fn returns nil and
// roll back otherwise, returning fn's error unchanged.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of typed reads and writes available inside a transaction.
// Single-record getters return ErrNotFound when the id is absent. Batched
// getters return only the records that exist, in no particular order.
type Tx interface {
	GetReporter(ctx context.Context, id int64) (*model.Reporter, error)
	GetReporters(ctx context.Context, ids []int64) ([]model.Reporter, error)
	InsertReporter(ctx context.Context, r *model.Reporter) error
	UpdateReporter(ctx context.Context, r *model.Reporter) error

	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	GetPatients(ctx context.Context, ids []int64) ([]model.Patient, error)
	InsertPatient(ctx context.Context, p *model.Patient) error
	UpdatePatient(ctx context.Context, p *model.Patient) error

	GetDisease(ctx context.Context, id int64) (*model.Disease, error)
	GetDiseases(ctx context.Context, ids []int64) ([]model.Disease, error)
	InsertDisease(ctx context.Context, d *model.Disease) error
	UpdateDisease(ctx context.Context, d *model.Disease) error

	GetReport(ctx context.Context, id int64) (*model.Report, error)
	// InsertReport assigns r.ID.
	InsertReport(ctx context.Context, r *model.Report) error
	UpdateReport(ctx context.Context, r *model.Report) error
	DeleteReport(ctx context.Context, id int64) error
	// ListReports returns a page ordered by ascending id.
	ListReports(ctx context.Context, offset, limit int) ([]model.Report, error)
	// LatestReportByStatus orders by date_updated descending with nulls last,
	// breaking ties by descending id.
	LatestReportByStatus(ctx context.Context, status model.ReportStatus) (*model.Report, error)

	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	InsertAccount(ctx context.Context, a *model.Account) error
	UpdateAccount(ctx context.Context, a *model.Account) error
}
