package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/config"
	"github.com/mesikahq/outbreak-exchange/internal/model"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Audit:    config.AuditConfig{Backend: "memory"},
		Auth:     config.AuthConfig{JWTSecret: "test"},
	}
}

func TestNewWiresMemoryStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	applied, err := a.DB.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	reporter, err := a.Reports.UpsertReporter(ctx, model.Principal{ID: 1}, 1, model.ReporterPatch{
		FirstName:           model.Some("Kofi"),
		LastName:            model.Some("Mensah"),
		Email:               model.Some("kofi@example.org"),
		JobTitle:            model.Some("Epidemiologist"),
		PhoneNumber:         model.Some("+233 20 000 0000"),
		OrganizationName:    model.Some("Korle Bu"),
		OrganizationAddress: model.Some("Accra"),
	})
	require.NoError(t, err)

	_, err = a.Auth.CreateAccount(ctx, reporter.ID, "kofi", "pw")
	require.NoError(t, err)
	token, err := a.Auth.Login(ctx, "kofi", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	events, err := a.Audit.QueryEvents(ctx, map[string]interface{}{"resource": "reporter"}, 0, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestNewRejectsBadSettings(t *testing.T) {
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.Security.EncryptionKey = "zz"
	_, err := New(ctx, cfg, zap.NewNop())
	assert.ErrorContains(t, err, "encryption")

	cfg = memoryConfig()
	cfg.Audit.Backend = "kafka"
	_, err = New(ctx, cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown audit backend")

	cfg = memoryConfig()
	cfg.Database.Driver = "oracle"
	_, err = New(ctx, cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown database driver")

	cfg = memoryConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "outbreak.db")
	_, err = New(ctx, cfg, zap.NewNop())
	assert.ErrorContains(t, err, "security.encryption_key")
}

func TestPatientsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "outbreak.db")
	cfg.Security.EncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

	first, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = first.DB.Migrate(ctx)
	require.NoError(t, err)
	_, err = first.Reports.UpsertPatient(ctx, model.Principal{ID: 1}, 10, model.PatientPatch{
		FirstName:           model.Some("Kwame"),
		LastName:            model.Some("Asante"),
		DateOfBirth:         model.Some(time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC)),
		Gender:              model.Some(model.GenderMale),
		MedicalRecordNumber: model.Some(int64(555001)),
		PatientAddress:      model.Some("4 Castle Road, Kumasi"),
	})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.Close(ctx)

	patient, err := second.Reports.GetPatient(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "4 Castle Road, Kumasi", patient.PatientAddress)
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
}
