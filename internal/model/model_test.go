package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeAt(t *testing.T) {
	p := Patient{DateOfBirth: time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC)}

	assert.Equal(t, 26, p.AgeAt(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 25, p.AgeAt(time.Date(2025, 5, 24, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 26, p.AgeAt(time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, p.AgeAt(time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC)))
}

func TestReportStatusLifecycle(t *testing.T) {
	assert.True(t, StatusDraft.IsMutable())
	for _, s := range []ReportStatus{StatusSubmitted, StatusUnderReview, StatusApproved} {
		assert.False(t, s.IsMutable(), s)
	}

	next, ok := StatusDraft.Next()
	require.True(t, ok)
	assert.Equal(t, StatusSubmitted, next)

	next, ok = StatusUnderReview.Next()
	require.True(t, ok)
	assert.Equal(t, StatusApproved, next)

	_, ok = StatusApproved.Next()
	assert.False(t, ok)

	assert.True(t, StatusDraft.CanTransition(StatusApproved))
	assert.True(t, StatusSubmitted.CanTransition(StatusSubmitted))
	assert.False(t, StatusApproved.CanTransition(StatusDraft))
	assert.False(t, ReportStatus("Rejected").CanTransition(StatusApproved))
}

func TestEnumDecoding(t *testing.T) {
	var s ReportStatus
	require.NoError(t, json.Unmarshal([]byte(`"Under Review"`), &s))
	assert.Equal(t, StatusUnderReview, s)

	assert.Error(t, json.Unmarshal([]byte(`"under review"`), &s))

	var g Gender
	var fe *FieldError
	require.ErrorAs(t, json.Unmarshal([]byte(`"Unknown"`), &g), &fe)
	assert.Equal(t, "gender", fe.Field)

	var c DiseaseCategory
	require.NoError(t, json.Unmarshal([]byte(`"Viral"`), &c))
	assert.Equal(t, CategoryViral, c)
}

func TestOptionalDistinguishesAbsentFromNull(t *testing.T) {
	var p PatientPatch
	require.NoError(t, json.Unmarshal([]byte(`{"first_name":"Kofi","emergency_contact":null}`), &p))

	assert.True(t, p.FirstName.Set)
	assert.Equal(t, "Kofi", p.FirstName.Value)
	assert.True(t, p.EmergencyContact.Set)
	assert.Nil(t, p.EmergencyContact.Value)
	assert.False(t, p.LastName.Set)
	assert.False(t, p.DateOfBirth.Set)

	contact := "Ama"
	pt := Patient{FirstName: "Old", LastName: "Mensah", EmergencyContact: &contact}
	p.ApplyTo(&pt)
	assert.Equal(t, "Kofi", pt.FirstName)
	assert.Equal(t, "Mensah", pt.LastName)
	assert.Nil(t, pt.EmergencyContact)
}

func TestReportPatchApply(t *testing.T) {
	var p ReportPatch
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Approved","disease_id":1000}`), &p))

	patient := int64(7)
	r := Report{Status: StatusDraft, PatientID: &patient}
	p.ApplyTo(&r)

	assert.Equal(t, StatusApproved, r.Status)
	require.NotNil(t, r.DiseaseID)
	assert.Equal(t, int64(1000), *r.DiseaseID)
	assert.Equal(t, &patient, r.PatientID)
}

func TestValidation(t *testing.T) {
	now := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

	r := Reporter{FirstName: "Ada", LastName: "Okafor", Email: "not-an-email", JobTitle: "Nurse",
		PhoneNumber: "+1", OrganizationName: "Org", OrganizationAddress: "Addr"}
	var fe *FieldError
	require.ErrorAs(t, r.Validate(), &fe)
	assert.Equal(t, "email", fe.Field)

	r.Email = "ada@example.org"
	assert.NoError(t, r.Validate())

	p := Patient{FirstName: "Kofi", LastName: "Mensah", DateOfBirth: now.Add(24 * time.Hour),
		Gender: GenderMale, MedicalRecordNumber: 1, PatientAddress: "Addr"}
	require.ErrorAs(t, p.Validate(now), &fe)
	assert.Equal(t, "date_of_birth", fe.Field)

	p.DateOfBirth = now
	assert.NoError(t, p.Validate(now))

	p.Gender = ""
	require.ErrorAs(t, p.Validate(now), &fe)
	assert.Equal(t, "gender", fe.Field)

	d := Disease{Name: "Cholera", Category: CategoryBacterial, Symptoms: "fever",
		SeverityLevel: SeverityLow, TreatmentStatus: TreatmentNone}
	require.ErrorAs(t, d.Validate(), &fe)
	assert.Equal(t, "date_detected", fe.Field)

	rep := Report{}
	require.ErrorAs(t, rep.Validate(), &fe)
	assert.Equal(t, "status", fe.Field)
}

func TestOptionalTimeAcceptsDateOnly(t *testing.T) {
	var p PatientPatch
	require.NoError(t, json.Unmarshal([]byte(`{"date_of_birth":"1999-05-25"}`), &p))
	dob, ok := p.DateOfBirth.Get()
	require.True(t, ok)
	assert.Equal(t, time.Date(1999, 5, 25, 0, 0, 0, 0, time.UTC), dob)

	var d DiseasePatch
	require.NoError(t, json.Unmarshal([]byte(`{"date_detected":"2025-09-01T08:30:00Z"}`), &d))
	assert.Equal(t, 8, d.DateDetected.Value.Hour())

	assert.Error(t, json.Unmarshal([]byte(`{"date_detected":"yesterday"}`), &d))
}
