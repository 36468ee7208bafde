package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesikahq/outbreak-exchange/internal/model"
)

const fixtureYAML = `
reporters:
  - id: 1
    first_name: Ama
    last_name: Boateng
    email: ama@example.org
    job_title: Surveillance Officer
    phone_number: "+233 24 000 0000"
    organization_name: Ghana Health Service
    organization_address: Accra
  - id: 2
    first_name: Kofi
    last_name: Mensah
    email: kofi@example.org
    job_title: Epidemiologist
    phone_number: "+233 20 000 0000"
    organization_name: Korle Bu
    organization_address: Accra
patients:
  - id: 10
    first_name: Kwame
    last_name: Asante
    date_of_birth: 1999-05-25
    gender: Male
    medical_record_number: 555001
    patient_address: 4 Castle Road, Kumasi
    emergency_contact: null
diseases:
  - id: 100
    name: Cholera
    category: Bacterial
    date_detected: 2025-09-07
    symptoms: acute watery diarrhoea
    severity_level: High
    treatment_status: Ongoing
reports:
  - status: Draft
    patient_id: 10
    disease_id: 100
  - status: Submitted
    patient_id: 10
    disease_id: null
`

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	require.Len(t, f.Reporters, 2)
	assert.Equal(t, int64(2), f.Reporters[1].ID)
	assert.Equal(t, model.Some("kofi@example.org"), f.Reporters[1].Email)

	require.Len(t, f.Patients, 1)
	p := f.Patients[0]
	assert.Equal(t, model.Some(model.GenderMale), p.Gender)
	assert.True(t, p.DateOfBirth.Value.Equal(time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.EmergencyContact.Set)
	assert.Nil(t, p.EmergencyContact.Value)
	assert.Equal(t, model.Some("Kwame"), p.FirstName)

	require.Len(t, f.Reports, 2)
	assert.Equal(t, model.StatusSubmitted, f.Reports[1].Status.Value)
	require.NotNil(t, f.Reports[0].DiseaseID.Value)
	assert.Equal(t, int64(100), *f.Reports[0].DiseaseID.Value)
	assert.True(t, f.Reports[1].DiseaseID.Set)
	assert.Nil(t, f.Reports[1].DiseaseID.Value)
}

func TestLoadFixtureRejectsBadInput(t *testing.T) {
	_, err := LoadFixture([]byte("reporters:\n  - id: 1\n    nickname: A\n"))
	assert.Error(t, err)

	_, err = LoadFixture([]byte("reports:\n  - status: Closed\n"))
	assert.ErrorContains(t, err, "status")
}

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "test")
	t.Setenv("OUTBREAK_DATABASE_DRIVER", "sqlite")
	t.Setenv("OUTBREAK_SECURITY_ENCRYPTION_KEY", testKey)
	t.Setenv("OUTBREAK_DATABASE_SQLITE_PATH", filepath.Join(dir, "outbreak.db"))

	out, err := run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	out, err = run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "Applied 1 migration(s)\n", out)

	out, err = run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "Applied 0 migration(s)\n", out)

	out, err = run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(fixtureYAML), 0o600))
	out, err = run(t, "seed", fixture)
	require.NoError(t, err)
	assert.Equal(t, "Seeded 2 reporter(s), 1 patient(s), 1 disease(s), 2 report(s)\n", out)

	out, err = run(t, "account", "create", "ama", "--reporter", "1", "--password", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Created account ama for reporter 1\n", out)

	_, err = run(t, "account", "create", "ama2", "--reporter", "1", "--password", "s3cret")
	assert.Error(t, err)

	out, err = run(t, "account", "disable", "ama")
	require.NoError(t, err)
	assert.Equal(t, "Account ama disabled\n", out)

	out, err = run(t, "migrate", "down")
	require.NoError(t, err)
	assert.Equal(t, "Rolled back last migration\n", out)
}

func TestCommandsRequireEncryptionKeyForSQLite(t *testing.T) {
	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "test")
	t.Setenv("OUTBREAK_DATABASE_DRIVER", "sqlite")
	t.Setenv("OUTBREAK_DATABASE_SQLITE_PATH", filepath.Join(t.TempDir(), "outbreak.db"))

	_, err := run(t, "migrate", "up")
	assert.ErrorContains(t, err, "security.encryption_key")
}

func TestCommandArgumentErrors(t *testing.T) {
	t.Setenv("OUTBREAK_AUTH_JWT_SECRET", "test")
	t.Setenv("OUTBREAK_DATABASE_DRIVER", "memory")

	_, err := run(t, "migrate", "up")
	assert.ErrorIs(t, err, errNoMigrations)

	_, err = run(t, "account", "create", "ama", "--password", "x")
	assert.ErrorContains(t, err, "--reporter")

	_, err = run(t, "seed", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
